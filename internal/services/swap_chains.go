package services

import (
	"deadkm-service/internal/domain"
	"sort"
	"strconv"
)

// DecomposeSwapChains splits a reassignment into chains of pickup transfers.
//
// Driver i is followed by the driver who originally held the pickup i now
// serves. Each permutation cycle of two or more drivers becomes one closed
// chain starting at its lowest driver index; drivers that keep their pickup
// are omitted. When drivers or pickups were left unassigned the walk can end,
// and those transfers are reported as open chains. Every changed driver
// appears in exactly one chain. Chains are ordered by their first driver.
func DecomposeSwapChains(original, optimized []domain.Assignment, vehicleIDs []string) []domain.SwapChain {
	n := len(optimized)
	pickups := 0
	for _, a := range original {
		if a.Pickup+1 > pickups {
			pickups = a.Pickup + 1
		}
	}
	for _, a := range optimized {
		if a.Pickup+1 > pickups {
			pickups = a.Pickup + 1
		}
	}
	owners := domain.PickupOwners(original, pickups)

	origPickup := func(i int) int {
		if i < len(original) {
			return original[i].Pickup
		}
		return domain.Unassigned
	}

	changed := make([]bool, n)
	next := make([]int, n)
	hasPrev := make([]bool, n)
	for i := 0; i < n; i++ {
		next[i] = domain.Unassigned
		changed[i] = optimized[i].Pickup != origPickup(i)
	}
	for i := 0; i < n; i++ {
		if !changed[i] || !optimized[i].IsAssigned() {
			continue
		}
		k := owners[optimized[i].Pickup]
		if k >= 0 && k < n && k != i {
			next[i] = k
			hasPrev[k] = true
		}
	}

	label := func(i int) string {
		if i < len(vehicleIDs) {
			return vehicleIDs[i]
		}
		return strconv.Itoa(i)
	}

	visited := make([]bool, n)
	var chains []domain.SwapChain

	// Open chains start at a changed driver nobody hands over to.
	for i := 0; i < n; i++ {
		if !changed[i] || visited[i] || hasPrev[i] {
			continue
		}
		c := domain.SwapChain{}
		for k := i; k != domain.Unassigned && !visited[k]; k = next[k] {
			visited[k] = true
			c.Drivers = append(c.Drivers, k)
			c.Vehicles = append(c.Vehicles, label(k))
		}
		chains = append(chains, c)
	}

	// What remains are proper cycles.
	for i := 0; i < n; i++ {
		if !changed[i] || visited[i] {
			continue
		}
		c := domain.SwapChain{Closed: true}
		for k := i; k != domain.Unassigned && !visited[k]; k = next[k] {
			visited[k] = true
			c.Drivers = append(c.Drivers, k)
			c.Vehicles = append(c.Vehicles, label(k))
		}
		chains = append(chains, c)
	}

	sort.SliceStable(chains, func(a, b int) bool {
		return chains[a].Drivers[0] < chains[b].Drivers[0]
	})
	return chains
}
