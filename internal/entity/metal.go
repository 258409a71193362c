package entity

// Metal identifies one of the precious metals the exchange trades.
type Metal string

const (
	MetalGold      Metal = "Gold"
	MetalSilver    Metal = "Silver"
	MetalPlatinum  Metal = "Platinum"
	MetalPalladium Metal = "Palladium"
)

// Metals lists every supported metal in settlement order.
var Metals = []Metal{MetalGold, MetalSilver, MetalPlatinum, MetalPalladium}

// Valid reports whether m is one of the supported metals.
func (m Metal) Valid() bool {
	switch m {
	case MetalGold, MetalSilver, MetalPlatinum, MetalPalladium:
		return true
	}
	return false
}
