// Package elements maps element symbols to atomic numbers and back, used
// wherever a configuration document names species by symbol ("Na", "Cl")
// instead of atomic number.
package elements

var symbols = [...]string{
	"", "H", "He", "Li", "Be", "B", "C", "N", "O", "F", "Ne",
	"Na", "Mg", "Al", "Si", "P", "S", "Cl", "Ar", "K", "Ca",
	"Sc", "Ti", "V", "Cr", "Mn", "Fe", "Co", "Ni", "Cu", "Zn",
	"Ga", "Ge", "As", "Se", "Br", "Kr", "Rb", "Sr", "Y", "Zr",
	"Nb", "Mo", "Tc", "Ru", "Rh", "Pd", "Ag", "Cd", "In", "Sn",
	"Sb", "Te", "I", "Xe", "Cs", "Ba", "La", "Ce", "Pr", "Nd",
	"Pm", "Sm", "Eu", "Gd", "Tb", "Dy", "Ho", "Er", "Tm", "Yb",
	"Lu", "Hf", "Ta", "W", "Re", "Os", "Ir", "Pt", "Au", "Hg",
	"Tl", "Pb", "Bi", "Po", "At", "Rn", "Fr", "Ra", "Ac", "Th",
	"Pa", "U", "Np", "Pu", "Am", "Cm", "Bk", "Cf", "Es", "Fm",
	"Md", "No", "Lr", "Rf", "Db", "Sg", "Bh", "Hs", "Mt", "Ds",
	"Rg", "Cn", "Nh", "Fl", "Mc", "Lv", "Ts", "Og",
}

var byName map[string]uint8

func init() {
	byName = make(map[string]uint8, len(symbols))
	for z, s := range symbols {
		if s != "" {
			byName[s] = uint8(z)
		}
	}
}

// Symbol returns the element symbol for atomic number z, or "" if z is out
// of range.
func Symbol(z uint8) string {
	if int(z) >= len(symbols) {
		return ""
	}
	return symbols[z]
}

// AtomicNumber looks up the atomic number for a case-sensitive element
// symbol (e.g. "Na", "Cl").
func AtomicNumber(symbol string) (uint8, bool) {
	z, ok := byName[symbol]
	return z, ok
}
