package control

import (
	"fmt"

	"lottery_service/internal/draw"
	"lottery_service/internal/exposure"
)

// Detector decides, for auto_detect configs, whether a period's exposure warrants control.
type Detector interface {
	Detect(e *exposure.Exposure) Detection
}

type Detection struct {
	Apply          bool    `json:"apply"`
	Reason         string  `json:"reason"`
	ExpectedMargin float64 `json:"expected_margin"` // stake minus mean payout, as a share of stake
	PlayerWinRate  float64 `json:"player_win_rate"` // share of sampled draws where payout exceeds stake
	TailRate       float64 `json:"tail_rate"`       // share of sampled draws costing more than TailLoss
}

// SimulationDetector prices a sample of uniform draws against the period's exposure.
type SimulationDetector struct {
	Samples      int
	MinMargin    float64 // apply when expected margin falls below this share of stake
	MaxPlayerWin float64 // apply when players come out ahead in more than this share of draws
	TailLoss     float64 // a draw is a tail loss when the platform loses more than this share of stake
	MaxTailRate  float64 // apply when tail losses exceed this share of draws
	gen          *draw.Generator
}

func NewSimulationDetector(gen *draw.Generator) *SimulationDetector {
	return &SimulationDetector{
		Samples:      1000,
		MinMargin:    0.05,
		MaxPlayerWin: 0.6,
		TailLoss:     0.2,
		MaxTailRate:  0.01,
		gen:          gen,
	}
}

func (d *SimulationDetector) Detect(e *exposure.Exposure) Detection {
	if e.Empty() || e.Stake <= 0 {
		return Detection{Reason: "no exposure"}
	}

	total, wins, tails := 0.0, 0, 0
	for i := 0; i < d.Samples; i++ {
		pay := e.Payout(d.gen.Uniform())
		total += pay
		if pay > e.Stake {
			wins++
		}
		if pay-e.Stake > d.TailLoss*e.Stake {
			tails++
		}
	}
	n := float64(d.Samples)
	det := Detection{
		ExpectedMargin: (e.Stake - total/n) / e.Stake,
		PlayerWinRate:  float64(wins) / n,
		TailRate:       float64(tails) / n,
	}
	switch {
	case det.ExpectedMargin < d.MinMargin:
		det.Apply, det.Reason = true, fmt.Sprintf("expected margin %.3f below %.3f", det.ExpectedMargin, d.MinMargin)
	case det.PlayerWinRate > d.MaxPlayerWin:
		det.Apply, det.Reason = true, fmt.Sprintf("player win rate %.3f above %.3f", det.PlayerWinRate, d.MaxPlayerWin)
	case det.TailRate > d.MaxTailRate:
		det.Apply, det.Reason = true, fmt.Sprintf("tail loss rate %.3f above %.3f", det.TailRate, d.MaxTailRate)
	default:
		det.Reason = "exposure within thresholds"
	}
	return det
}
