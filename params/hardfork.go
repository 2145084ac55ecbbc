package params

import "fmt"

// Hardfork is a named activation level of the protocol rules. Values are
// ordered, so activation checks are plain comparisons: hf >= London.
type Hardfork int

const (
	Frontier Hardfork = iota
	FrontierThawing
	Homestead
	DAOFork
	Tangerine
	SpuriousDragon
	Byzantium
	Constantinople
	Petersburg
	Istanbul
	MuirGlacier
	Berlin
	London
	ArrowGlacier
	GrayGlacier
	Merge
	Shanghai
	Cancun
	Prague
)

var hardforkNames = map[Hardfork]string{
	Frontier:        "frontier",
	FrontierThawing: "frontierThawing",
	Homestead:       "homestead",
	DAOFork:         "dao",
	Tangerine:       "tangerine",
	SpuriousDragon:  "spuriousDragon",
	Byzantium:       "byzantium",
	Constantinople:  "constantinople",
	Petersburg:      "petersburg",
	Istanbul:        "istanbul",
	MuirGlacier:     "muirGlacier",
	Berlin:          "berlin",
	London:          "london",
	ArrowGlacier:    "arrowGlacier",
	GrayGlacier:     "grayGlacier",
	Merge:           "merge",
	Shanghai:        "shanghai",
	Cancun:          "cancun",
	Prague:          "prague",
}

func (h Hardfork) String() string {
	if name, ok := hardforkNames[h]; ok {
		return name
	}
	return fmt.Sprintf("unknown(%d)", int(h))
}

// ParseHardfork maps a fork name to its Hardfork value. Matching is exact on
// the canonical lower-camel names used in chain config files.
func ParseHardfork(name string) (Hardfork, error) {
	for hf, n := range hardforkNames {
		if n == name {
			return hf, nil
		}
	}
	return 0, fmt.Errorf("unknown hardfork %q", name)
}

// IsPostMerge reports whether proof-of-work fields (difficulty, nonce) are
// retired and prevrandao is in effect.
func (h Hardfork) IsPostMerge() bool {
	return h >= Merge
}
