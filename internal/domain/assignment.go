package domain

// Unassigned marks a driver without a pickup, or a pickup without a driver,
// when partial assignment is permitted.
const Unassigned = -1

// Pairing of one driver (row index) to one pickup (column index).
type Assignment struct {
	Driver int
	Pickup int
}

func (a Assignment) IsAssigned() bool { return a.Pickup != Unassigned }

// IdentityAssignments returns the original pairing implied by input order:
// driver i serves pickup i. With unequal counts the surplus drivers are
// unassigned.
func IdentityAssignments(drivers, pickups int) []Assignment {
	out := make([]Assignment, drivers)
	for i := range out {
		p := i
		if i >= pickups {
			p = Unassigned
		}
		out[i] = Assignment{Driver: i, Pickup: p}
	}
	return out
}

// PickupOwners inverts an assignment set: owners[j] is the driver holding
// pickup j, or Unassigned.
func PickupOwners(assignments []Assignment, pickups int) []int {
	owners := make([]int, pickups)
	for j := range owners {
		owners[j] = Unassigned
	}
	for _, a := range assignments {
		if a.Pickup >= 0 && a.Pickup < pickups {
			owners[a.Pickup] = a.Driver
		}
	}
	return owners
}

// ChangedDrivers counts drivers whose pickup differs between the two sets.
// Both sets are indexed by driver.
func ChangedDrivers(original, optimized []Assignment) int {
	n := 0
	for i := range optimized {
		if i >= len(original) || original[i].Pickup != optimized[i].Pickup {
			n++
		}
	}
	return n
}
