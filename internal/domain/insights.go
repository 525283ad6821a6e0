package domain

// SwapChain is one cycle of pickup transfers: Vehicles[0] receives the
// original pickup of Vehicles[1], Vehicles[1] that of Vehicles[2], and the
// last closes back to Vehicles[0]. Open chains only occur with unassigned
// drivers or pickups and do not close.
type SwapChain struct {
	Drivers  []int
	Vehicles []string
	Closed   bool
}

func (c SwapChain) Len() int { return len(c.Vehicles) }

// Display lists the vehicles in transfer order, repeating the first one at the
// end of closed chains.
func (c SwapChain) Display() []string {
	out := make([]string, 0, len(c.Vehicles)+1)
	out = append(out, c.Vehicles...)
	if c.Closed && len(c.Vehicles) > 0 {
		out = append(out, c.Vehicles[0])
	}
	return out
}

// Aggregate outcome of one optimization run.
type Insights struct {
	TotalRoutes    int
	OriginalDeadKm float64
	TotalDeadKm    float64
	TotalMinimized float64
	// TotalSwaps = InterInstitute + IntraInstitute + ToUnassigned.
	TotalSwaps     int
	InterInstitute int
	IntraInstitute int
	// Drivers that held a pickup and were left without one.
	ToUnassigned   int
	// Routes whose original cell was unreachable; they are left out of both sums.
	UnpricedRoutes int
}
