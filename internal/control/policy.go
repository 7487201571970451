package control

import (
	"lottery_service/internal/draw"
	"lottery_service/internal/exposure"
)

// Policy is the resolved control decision for one period.
type Policy struct {
	Active    bool     `json:"active"`
	ConfigID  string   `json:"config_id,omitempty"`
	Mode      string   `json:"mode"`
	Direction string   `json:"direction,omitempty"`
	Bias      int      `json:"bias"`
	Scope     []string `json:"scope,omitempty"` // member ids; nil means every bettor
	Reason    string   `json:"reason"`
}

func NoControl(reason string) Policy {
	return Policy{Mode: ModeNormal, Reason: reason}
}

func (p Policy) GeneratorBias() draw.Bias {
	if !p.Active {
		return draw.Bias{}
	}
	return draw.Bias{Active: true, Percent: p.Bias, Favor: p.Direction == FavorTarget}
}

// Liability selects the part of the book the generator should price candidates against.
// The draw itself stays global; only the selection criterion is scoped.
func (p Policy) Liability(book *exposure.Book) draw.Liability {
	if !p.Active || book == nil {
		return nil
	}
	if p.Scope == nil {
		return book.Total
	}
	return book.Scoped(p.Scope)
}
