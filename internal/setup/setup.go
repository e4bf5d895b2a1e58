// Package setup builds the sublattice Context the optimizer consumes from a
// Structure, a Composition, and the sublattice/iteration mode: it resolves
// shell radii, applies the composition, sorts sites contiguous by
// sublattice, packs species, builds the pair list, and computes the
// prefactor/pair-weight/target tensors.
//
// The preprocessing pass runs once before any worker is spawned: freeze a
// context, then hand it to every worker read-only.
package setup

import (
	"sort"

	"github.com/sarat-asymmetrica/sqsgen/internal/geometry"
	"github.com/sarat-asymmetrica/sqsgen/internal/sqserr"
	"github.com/sarat-asymmetrica/sqsgen/internal/structure"
	"github.com/sarat-asymmetrica/sqsgen/internal/tensor"
)

// Mode selects whether the optimizer treats the composition as one
// cooperating lattice (Interact) or as independently optimized sublattices
// (Split).
type Mode int

const (
	Interact Mode = iota
	Split
)

// IterationMode selects random sampling or systematic (exhaustive)
// enumeration.
type IterationMode int

const (
	Random IterationMode = iota
	Systematic
)

const (
	defaultAtol          = 1e-3
	defaultRtol          = 1e-5
	defaultBinWidth      = 0.05
	defaultPeakIsolation = 0.25
)

// ShellRadiiSpec resolves to an ordered radii slice (radii[0] == 0) either
// directly (Explicit) or by running one of the two auto-detection policies
// against a distance matrix.
type ShellRadiiSpec struct {
	Explicit []float64

	Policy string // "naive" or "peak" ("" defaults to "peak")

	Atol, Rtol float64
	BinWidth, PeakIsolation float64
}

// Resolve returns the radii slice for this spec against the given distance
// matrix.
func (sp ShellRadiiSpec) Resolve(d *geometry.Matrix) ([]float64, error) {
	if sp.Explicit != nil {
		if len(sp.Explicit) == 0 || sp.Explicit[0] != 0 {
			return nil, sqserr.BadValuef("shell_radii", "explicit shell radii must be non-empty and start with 0")
		}
		return sp.Explicit, nil
	}
	atol, rtol := sp.Atol, sp.Rtol
	if atol <= 0 {
		atol = defaultAtol
	}
	if rtol <= 0 {
		rtol = defaultRtol
	}
	switch sp.Policy {
	case "", "peak":
		binWidth, peakIsolation := sp.BinWidth, sp.PeakIsolation
		if binWidth <= 0 {
			binWidth = defaultBinWidth
		}
		if peakIsolation <= 0 {
			peakIsolation = defaultPeakIsolation
		}
		return geometry.PeakShellRadii(d, binWidth, peakIsolation), nil
	case "naive":
		return geometry.NaiveShellRadii(d, atol, rtol), nil
	default:
		return nil, sqserr.BadValuef("shell_radii", "unknown shell radii policy %q", sp.Policy)
	}
}

// Bounds is a half-open [Lo, Hi) span of contiguous site indices belonging
// to one sublattice.
type Bounds struct {
	Lo, Hi int
}

// Len returns Hi - Lo.
func (b Bounds) Len() int { return b.Hi - b.Lo }

// Context is the SubLattice context the optimizer consumes: a structure
// sorted so each sublattice is contiguous, shuffling bounds, the
// permutation needed to restore original site order, packed species and
// shell index maps, the pair list, and the prefactor/pair-weight/target
// tensors.
type Context struct {
	Structure *structure.Structure
	Bounds    []Bounds

	// OriginalOrder restores a result's species vector to the caller's
	// original site numbering: OriginalOrder[k] is the original site index
	// of Structure's site k.
	OriginalOrder []int

	PackedSpecies  []int // one entry per Structure site, in [0, S)
	SpeciesIndex   map[uint8]int
	SpeciesReverse map[int]uint8

	ShellIndex   map[int]int
	ShellReverse map[int]int

	Pairs        []structure.AtomPair
	Prefactors   *tensor.Tensor
	PairWeights  *tensor.Tensor
	Target       *tensor.Tensor
	ShellRadii   []float64
	ShellWeights map[int]float64
}

// NumSpecies returns the packed species count S.
func (c *Context) NumSpecies() int { return len(c.SpeciesReverse) }

// NumShells returns the compacted shell count M.
func (c *Context) NumShells() int { return len(c.ShellReverse) }

// Options parameterizes Build. Per-sublattice fields (ShellRadii,
// ShellWeights, Prefactors, PairWeights) may hold either a single shared
// entry (applied to every sublattice) or exactly len(Composition) entries,
// one per sublattice, honored only in Split mode. Target, when set in Split
// mode, must hold exactly len(Composition) entries; Build rejects any other
// count with BadValue.
type Options struct {
	Structure     *structure.Structure
	Composition   structure.Composition
	Mode          Mode
	IterationMode IterationMode

	ShellRadii   []ShellRadiiSpec
	ShellWeights []map[int]float64

	Prefactors  []*tensor.Tensor
	PairWeights []*tensor.Tensor
	Target      []*tensor.Tensor
}

func pickRadii(specs []ShellRadiiSpec, i int) ShellRadiiSpec {
	if len(specs) == 0 {
		return ShellRadiiSpec{}
	}
	if len(specs) == 1 {
		return specs[0]
	}
	return specs[i]
}

func pickWeights(weights []map[int]float64, i int) map[int]float64 {
	if len(weights) == 0 {
		return nil
	}
	if len(weights) == 1 {
		return weights[0]
	}
	return weights[i]
}

func pickTensor(tensors []*tensor.Tensor, i int) *tensor.Tensor {
	if len(tensors) == 0 {
		return nil
	}
	if len(tensors) == 1 {
		return tensors[0]
	}
	return tensors[i]
}

// Build validates the composition and mode constraints and constructs one
// SubLattice context (Interact) or one per sublattice (Split).
func Build(opts Options) ([]*Context, error) {
	if err := opts.Composition.Validate(); err != nil {
		return nil, err
	}
	if opts.IterationMode == Systematic {
		if len(opts.Composition) != 1 {
			return nil, sqserr.BadValuef("iteration_mode", "systematic iteration requires exactly one sublattice, got %d", len(opts.Composition))
		}
		if opts.Mode == Split {
			return nil, sqserr.BadValuef("iteration_mode", "systematic iteration is not allowed in split mode")
		}
	}
	if opts.Mode == Split && len(opts.Target) > 0 && len(opts.Target) != len(opts.Composition) {
		return nil, sqserr.BadValuef("target_objective", "split mode needs one target tensor per sublattice (%d), got %d", len(opts.Composition), len(opts.Target))
	}

	switch opts.Mode {
	case Interact:
		return buildInteract(opts)
	case Split:
		return buildSplit(opts)
	default:
		return nil, sqserr.BadValuef("sublattice_mode", "unknown sublattice mode %d", opts.Mode)
	}
}

func buildInteract(opts Options) ([]*Context, error) {
	working, err := structure.ApplyComposition(opts.Structure, opts.Composition)
	if err != nil {
		return nil, err
	}

	owner := make([]int, working.NumSites())
	for i := range owner {
		owner[i] = len(opts.Composition) // inert sites sort after every sublattice
	}
	for si, sl := range opts.Composition {
		for _, site := range sl.Sites {
			owner[site] = si
		}
	}

	sorted, perm := working.SortedWithIndices(func(i, j int) bool { return owner[i] < owner[j] })

	bounds := make([]Bounds, len(opts.Composition))
	lo := 0
	for si, sl := range opts.Composition {
		bounds[si] = Bounds{Lo: lo, Hi: lo + sl.NumSites()}
		lo += sl.NumSites()
	}

	ctx, err := buildContext(sorted, bounds, perm,
		pickRadii(opts.ShellRadii, 0), pickWeights(opts.ShellWeights, 0),
		pickTensor(opts.Prefactors, 0), pickTensor(opts.PairWeights, 0), pickTensor(opts.Target, 0))
	if err != nil {
		return nil, err
	}
	return []*Context{ctx}, nil
}

func buildSplit(opts Options) ([]*Context, error) {
	subs, err := structure.ApplyCompositionAndDecompose(opts.Structure, opts.Composition)
	if err != nil {
		return nil, err
	}

	contexts := make([]*Context, len(subs))
	for i, sub := range subs {
		bounds := []Bounds{{Lo: 0, Hi: sub.NumSites()}}
		originalOrder := append([]int(nil), opts.Composition[i].Sites...)

		ctx, err := buildContext(sub, bounds, originalOrder,
			pickRadii(opts.ShellRadii, i), pickWeights(opts.ShellWeights, i),
			pickTensor(opts.Prefactors, i), pickTensor(opts.PairWeights, i), pickTensor(opts.Target, i))
		if err != nil {
			return nil, err
		}
		contexts[i] = ctx
	}
	return contexts, nil
}

func buildContext(
	s *structure.Structure,
	bounds []Bounds,
	originalOrder []int,
	radiiSpec ShellRadiiSpec,
	shellWeights map[int]float64,
	prefactorOverride, pairWeightOverride, targetOverride *tensor.Tensor,
) (*Context, error) {
	d := s.DistanceMatrix()
	radii, err := radiiSpec.Resolve(d)
	if err != nil {
		return nil, err
	}

	atol, rtol := radiiSpec.Atol, radiiSpec.Rtol
	if atol <= 0 {
		atol = defaultAtol
	}
	if rtol <= 0 {
		rtol = defaultRtol
	}

	if shellWeights == nil {
		shellWeights = defaultShellWeights(len(radii))
	}

	pairs, shellIndexMap, shellReverseMap := structure.Pairs(s, radii, atol, rtol, shellWeights)

	speciesList, speciesIndex, speciesReverse := packSpecies(s.Species)
	packed := make([]int, len(s.Species))
	for i, sp := range s.Species {
		packed[i] = speciesIndex[sp]
	}

	numSpecies := len(speciesList)
	numShells := len(shellReverseMap)
	n := s.NumSites()

	shellMatrix := geometry.ShellMatrix(d, radii, atol, rtol)
	coordNumber := make(map[int]int, numShells)
	for shellIdx := 0; shellIdx < numShells; shellIdx++ {
		key := shellReverseMap[shellIdx]
		count := 0
		for j := 0; j < n; j++ {
			if int(shellMatrix.At(0, j)) == key {
				count++
			}
		}
		coordNumber[shellIdx] = count
	}

	atomCount := make([]int, numSpecies)
	for _, sp := range packed {
		atomCount[sp]++
	}

	prefactors := tensor.New(numShells, numSpecies)
	for shellIdx := 0; shellIdx < numShells; shellIdx++ {
		mS := coordNumber[shellIdx]
		if mS == 0 {
			continue
		}
		for a := 0; a < numSpecies; a++ {
			if atomCount[a] == 0 {
				continue
			}
			xa := float64(atomCount[a]) / float64(n)
			for b := a; b < numSpecies; b++ {
				if atomCount[b] == 0 {
					continue
				}
				xb := float64(atomCount[b]) / float64(n)
				v := 1.0 / (float64(mS) * xa * xb * float64(n))
				prefactors.Set(shellIdx, a, b, v)
				prefactors.Set(shellIdx, b, a, v)
			}
		}
	}

	wantShape := tensor.New(numShells, numSpecies)

	pairWeights := pairWeightOverride
	if pairWeights == nil {
		pairWeights = tensor.New(numShells, numSpecies)
		for shellIdx := 0; shellIdx < numShells; shellIdx++ {
			for a := 0; a < numSpecies; a++ {
				for b := 0; b < numSpecies; b++ {
					if a != b {
						pairWeights.Set(shellIdx, a, b, 1)
					}
				}
			}
		}
	} else if !pairWeights.SameShape(wantShape) {
		return nil, sqserr.BadValuef("pair_weights", "pair-weights tensor shape (%d,%d,%d) does not match (%d,%d,%d)",
			pairWeights.M, pairWeights.S, pairWeights.S, numShells, numSpecies, numSpecies)
	}

	target := targetOverride
	if target == nil {
		target = tensor.New(numShells, numSpecies)
	} else if !target.SameShape(wantShape) {
		return nil, sqserr.BadValuef("target_objective", "target tensor shape (%d,%d,%d) does not match (%d,%d,%d)",
			target.M, target.S, target.S, numShells, numSpecies, numSpecies)
	}

	if prefactorOverride != nil {
		if !prefactorOverride.SameShape(wantShape) {
			return nil, sqserr.BadValuef("prefactors", "prefactors tensor shape (%d,%d,%d) does not match (%d,%d,%d)",
				prefactorOverride.M, prefactorOverride.S, prefactorOverride.S, numShells, numSpecies, numSpecies)
		}
		prefactors = prefactorOverride
	}

	return &Context{
		Structure:      s,
		Bounds:         bounds,
		OriginalOrder:  originalOrder,
		PackedSpecies:  packed,
		SpeciesIndex:   speciesIndex,
		SpeciesReverse: speciesReverse,
		ShellIndex:     shellIndexMap,
		ShellReverse:   shellReverseMap,
		Pairs:          pairs,
		Prefactors:     prefactors,
		PairWeights:    pairWeights,
		Target:         target,
		ShellRadii:     radii,
		ShellWeights:   shellWeights,
	}, nil
}

// defaultShellWeights returns {s: 1/s} for s in 1..M-1, where M = len(radii)-1
// is the number of shells the radii slice defines (radii[0] == 0 is not a
// shell).
func defaultShellWeights(numRadii int) map[int]float64 {
	m := numRadii - 1
	weights := make(map[int]float64, m)
	for s := 1; s < m; s++ {
		weights[s] = 1.0 / float64(s)
	}
	return weights
}

func packSpecies(species []uint8) ([]uint8, map[uint8]int, map[int]uint8) {
	seen := make(map[uint8]struct{})
	for _, sp := range species {
		seen[sp] = struct{}{}
	}
	list := make([]uint8, 0, len(seen))
	for sp := range seen {
		list = append(list, sp)
	}
	sort.Slice(list, func(i, j int) bool { return list[i] < list[j] })

	index := make(map[uint8]int, len(list))
	reverse := make(map[int]uint8, len(list))
	for i, sp := range list {
		index[sp] = i
		reverse[i] = sp
	}
	return list, index, reverse
}
