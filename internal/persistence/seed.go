package persistence

import (
	"fmt"
	"time"
)

type demoUser struct {
	email, name, password, role, description string
}

var demoUsers = []demoUser{
	{"alice@dlsu.edu.ph", "Alice Santos", "pass1", "student", "2nd year CS student"},
	{"benjamin@dlsu.edu.ph", "Benjamin Cruz", "pass2", "student", "Robotics enthusiast, 3rd year"},
	{"carla@dlsu.edu.ph", "Carla Reyes", "pass3", "student", "Information Systems, student assistant"},
	{"daniel@dlsu.edu.ph", "Daniel Lee", "techpass", "technician", "Lab technician for CS labs"},
	{"emily@dlsu.edu.ph", "Emily Torres", "pass5", "student", "TA and tutor"},
}

type demoReservation struct {
	user      string
	resource  string
	dayOffset int
	slots     []string
	anonymous bool
}

var demoReservations = []demoReservation{
	{"alice@dlsu.edu.ph", "lab1", 0, []string{"09:00"}, false},
	{"benjamin@dlsu.edu.ph", "lab1", 0, []string{"09:30", "10:00"}, false},
	{"carla@dlsu.edu.ph", "lab2", 1, []string{"11:00"}, true},
	{"emily@dlsu.edu.ph", "lab3", 2, []string{"08:00", "08:30"}, false},
	{"alice@dlsu.edu.ph", "lab2", 3, []string{"14:00"}, false},
}

// DemoSeed is the demonstration dataset: five users over both roles and five
// reservations over three labs, dated relative to the seeding day.
type DemoSeed struct {
	// Hash turns a plaintext password into its stored form.
	Hash func(password string) (string, error)
}

// SeedUsers implements Seeder.
func (d DemoSeed) SeedUsers(now time.Time) ([]User, error) {
	if d.Hash == nil {
		return nil, fmt.Errorf("demo seed: password hasher not configured")
	}
	users := make([]User, 0, len(demoUsers))
	for _, u := range demoUsers {
		hash, err := d.Hash(u.password)
		if err != nil {
			return nil, fmt.Errorf("demo seed: hash password for %s: %w", u.email, err)
		}
		users = append(users, User{
			Email:        u.email,
			Name:         u.name,
			PasswordHash: hash,
			Role:         u.role,
			Description:  u.description,
			CreatedAt:    now.UTC(),
			UpdatedAt:    now.UTC(),
		})
	}
	return users, nil
}

// SeedReservations implements Seeder. Identifiers are 1..n and dates are
// counted from the UTC day of now.
func (d DemoSeed) SeedReservations(now time.Time) ([]Reservation, error) {
	out := make([]Reservation, 0, len(demoReservations))
	for i, r := range demoReservations {
		out = append(out, Reservation{
			ID:        int64(i + 1),
			User:      r.user,
			Resource:  r.resource,
			Date:      now.UTC().AddDate(0, 0, r.dayOffset).Format(time.DateOnly),
			Slots:     append([]string(nil), r.slots...),
			Anonymous: r.anonymous,
			CreatedAt: now.UTC(),
		})
	}
	return out, nil
}
