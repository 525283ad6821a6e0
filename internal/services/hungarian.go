package services

import (
	"context"
	"math"
)

// hungarianInf exceeds any reduced cost the solver can produce for the cost
// ranges accepted by buildCosts.
const hungarianInf = math.MaxInt64 / 4

// solveAssignment returns match[i] = column of row i minimising the total of
// costs[i][match[i]] over the square matrix costs. It runs the shortest
// augmenting path form of the Hungarian method in O(n^3), adding one row per
// phase. ctx is checked once per phase and progress receives the number of
// rows matched so far.
func solveAssignment(ctx context.Context, costs [][]int64, progress func(done, total int)) ([]int, error) {
	n := len(costs)

	// Index 0 is a virtual column that holds the row being inserted.
	// u/v are the row/column potentials: u[i] + v[j] <= costs[i-1][j-1].
	u := make([]int64, n+1)
	v := make([]int64, n+1)
	// colRow[j] is the 1-based row matched with column j, 0 if free.
	colRow := make([]int, n+1)
	// trail[j] is the previous column on the alternating path to column j.
	trail := make([]int, n+1)
	minSlack := make([]int64, n+1)
	visited := make([]bool, n+1)

	for i := 1; i <= n; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		colRow[0] = i
		cur := 0
		for j := 0; j <= n; j++ {
			minSlack[j] = hungarianInf
			visited[j] = false
		}

		for colRow[cur] != 0 {
			visited[cur] = true
			row := colRow[cur]
			delta := int64(hungarianInf)
			next := 0

			for j := 1; j <= n; j++ {
				if visited[j] {
					continue
				}
				slack := costs[row-1][j-1] - u[row] - v[j]
				if slack < minSlack[j] {
					minSlack[j] = slack
					trail[j] = cur
				}
				if minSlack[j] < delta {
					delta = minSlack[j]
					next = j
				}
			}

			for j := 0; j <= n; j++ {
				if visited[j] {
					u[colRow[j]] += delta
					v[j] -= delta
				} else {
					minSlack[j] -= delta
				}
			}
			cur = next
		}

		// Flip the alternating path back to the virtual column.
		for cur != 0 {
			prev := trail[cur]
			colRow[cur] = colRow[prev]
			cur = prev
		}

		if progress != nil {
			progress(i, n)
		}
	}

	match := make([]int, n)
	for j := 1; j <= n; j++ {
		match[colRow[j]-1] = j - 1
	}
	return match, nil
}
