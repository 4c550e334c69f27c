package curve

import (
	"fmt"

	"github.com/rovshanmuradov/bondingcurve/internal/fixedmath"
)

// Point is one sample of the curve between launch and completion.
type Point struct {
	SolReserve   uint64 `json:"sol_reserve"`
	TokenReserve uint64 `json:"token_reserve"`
	TokensSold   uint64 `json:"tokens_sold"`
	Price        uint64 `json:"price"`
}

// Project samples the curve at steps+1 evenly spaced base reserve levels from
// start.Sol up to curveLimit. Every sample keeps token*sol^crr equal to its
// value at start, which is the invariant both trade directions preserve.
func Project(start Reserves, curveLimit uint64, steps int, p Params) ([]Point, error) {
	if steps <= 0 {
		return nil, fmt.Errorf("steps must be positive")
	}
	if start.Sol == 0 || start.Token == 0 {
		return nil, ErrZeroReserves
	}
	if curveLimit <= start.Sol {
		return nil, fmt.Errorf("curve limit %d must exceed starting reserve %d", curveLimit, start.Sol)
	}
	crr, err := p.crr()
	if err != nil {
		return nil, err
	}

	span := curveLimit - start.Sol
	points := make([]Point, 0, steps+1)
	for i := 0; i <= steps; i++ {
		added, err := fixedmath.MulDiv(span, uint64(i), uint64(steps))
		if err != nil {
			return nil, err
		}
		sol := start.Sol + added

		base, err := fixedmath.Div(start.Sol, sol)
		if err != nil {
			return nil, err
		}
		ratio, err := fixedmath.Pow(base, crr)
		if err != nil {
			return nil, err
		}
		token, err := fixedmath.Mul(start.Token, ratio)
		if err != nil {
			return nil, err
		}
		if token == 0 {
			return nil, ErrZeroReserves
		}
		price, err := fixedmath.Div(sol, token)
		if err != nil {
			return nil, err
		}
		points = append(points, Point{
			SolReserve:   sol,
			TokenReserve: token,
			TokensSold:   start.Token - token,
			Price:        price,
		})
	}
	return points, nil
}
