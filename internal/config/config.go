// Package config decodes the recursive JSON configuration document into
// the setup.Options the optimization engine consumes, applying every
// default in the key table and reporting defects as sqserr.Error values
// carrying a key path and, where documented, a help-link parameter name.
//
// Grounded on arx-os-arxos's cmd/config/config.go for the overall shape
// (a Load that turns a file path into a validated struct, a package-level
// default-with-fallback policy) and on go-playground/validator's
// struct-tag convention (seen throughout arx-os-arxos's
// services/construction/internal/models) for the handful of purely
// structural "must be present" checks; the domain-specific checks
// (disjoint sublattice sites, tensor shapes, species symbols) are plain
// Go, since no struct tag can express them.
package config

import (
	"encoding/json"
	"os"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/sarat-asymmetrica/sqsgen/internal/elements"
	"github.com/sarat-asymmetrica/sqsgen/internal/geometry"
	"github.com/sarat-asymmetrica/sqsgen/internal/optimizer"
	"github.com/sarat-asymmetrica/sqsgen/internal/rank"
	"github.com/sarat-asymmetrica/sqsgen/internal/setup"
	"github.com/sarat-asymmetrica/sqsgen/internal/sqserr"
	"github.com/sarat-asymmetrica/sqsgen/internal/structure"
	"github.com/sarat-asymmetrica/sqsgen/internal/tensor"
)

const (
	defaultRandomIterations = 500_000
	defaultChunkCeiling     = 100_000
	defaultKeep             = 1
)

var validate = validator.New()

// StructureDoc mirrors the "structure.*" keys of the configuration
// document.
type StructureDoc struct {
	Lattice   [3][3]float64    `json:"lattice" validate:"required"`
	Coords    [][3]float64     `json:"coords" validate:"required,min=1"`
	Species   []json.RawMessage `json:"species" validate:"required,min=1"`
	Supercell [3]int           `json:"supercell"`
}

// SublatticeDoc is one entry of the "composition" list: a site selector
// plus a dynamic symbol->count map, e.g. {"sites": "all", "Na": 4, "Cl": 4}.
// The dynamic keys can't be expressed as static struct fields, so this type
// decodes itself by hand.
type SublatticeDoc struct {
	Sites  json.RawMessage
	Counts map[string]int
}

// UnmarshalJSON pulls the reserved "sites" key out and treats every other
// key as a species-symbol-to-count entry.
func (d *SublatticeDoc) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return sqserr.TypeErrorf("composition", "expected a sublattice object, got %s", string(data))
	}
	d.Counts = make(map[string]int, len(raw))
	for key, value := range raw {
		if key == "sites" {
			d.Sites = value
			continue
		}
		var n int
		if err := json.Unmarshal(value, &n); err != nil {
			return sqserr.TypeErrorf("composition."+key, "expected an integer atom count")
		}
		d.Counts[key] = n
	}
	return nil
}

// Document is the full recursive configuration document of spec.md's
// external-interfaces key table.
type Document struct {
	Prec           string          `json:"prec"`
	IterationMode  string          `json:"iteration_mode"`
	SublatticeMode string          `json:"sublattice_mode"`
	Structure      StructureDoc    `json:"structure" validate:"required"`
	Composition    []SublatticeDoc `json:"composition" validate:"required,min=1"`

	ShellRadii    json.RawMessage    `json:"shell_radii"`
	Atol          float64            `json:"atol"`
	Rtol          float64            `json:"rtol"`
	BinWidth      float64            `json:"bin_width"`
	PeakIsolation float64            `json:"peak_isolation"`
	ShellWeights  map[string]float64 `json:"shell_weights"`

	Prefactors      json.RawMessage `json:"prefactors"`
	PairWeights     json.RawMessage `json:"pair_weights"`
	TargetObjective json.RawMessage `json:"target_objective"`

	Iterations     *uint64         `json:"iterations"`
	ChunkSize      *uint64         `json:"chunk_size"`
	ThreadsPerRank json.RawMessage `json:"threads_per_rank"`
	Keep           *int            `json:"keep"`
}

// Load reads path, decodes it as a configuration document, and validates
// it. It does not yet resolve the document against a structure; call
// Resolve for that.
func Load(path string) (*Document, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, sqserr.NotFoundf("config", "configuration file %q does not exist", path)
		}
		return nil, sqserr.Unknownf("config", "cannot read configuration file %q: %v", path, err)
	}

	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		if de, ok := err.(*sqserr.Error); ok {
			return nil, de
		}
		return nil, sqserr.TypeErrorf("config", "malformed JSON in %q: %v", path, err)
	}
	applyEnvOverrides(&doc)

	if err := validate.Struct(&doc); err != nil {
		return nil, translateValidation(err)
	}
	return &doc, nil
}

// applyEnvOverrides layers SQSGEN_-prefixed environment variables onto the
// document's scalar run parameters, so an operator can override a handful
// of knobs (iterations, chunk_size, keep, prec, iteration_mode,
// sublattice_mode) without editing the document on disk. Structural keys
// (structure, composition, tensors) are not override candidates: there's
// no sane scalar env-var shape for them.
func applyEnvOverrides(doc *Document) {
	v := viper.New()
	v.SetEnvPrefix("SQSGEN")
	v.AutomaticEnv()

	if v.IsSet("iterations") {
		n := v.GetUint64("iterations")
		doc.Iterations = &n
	}
	if v.IsSet("chunk_size") {
		n := v.GetUint64("chunk_size")
		doc.ChunkSize = &n
	}
	if v.IsSet("keep") {
		n := v.GetInt("keep")
		doc.Keep = &n
	}
	if v.IsSet("prec") {
		doc.Prec = v.GetString("prec")
	}
	if v.IsSet("iteration_mode") {
		doc.IterationMode = v.GetString("iteration_mode")
	}
	if v.IsSet("sublattice_mode") {
		doc.SublatticeMode = v.GetString("sublattice_mode")
	}
}

func translateValidation(err error) error {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok || len(verrs) == 0 {
		return sqserr.Unknownf("config", "validation failed: %v", err)
	}
	fe := verrs[0]
	keyPath := keyPathOf(fe.Namespace())
	return sqserr.NotFoundf(keyPath, "%s is required", keyPath)
}

// keyPathOf turns a validator namespace ("Document.Structure.Lattice")
// into the document's own dotted key path ("structure.lattice").
func keyPathOf(namespace string) string {
	out := make([]byte, 0, len(namespace))
	skippedRoot := false
	upperRun := false
	for i := 0; i < len(namespace); i++ {
		c := namespace[i]
		if c == '.' {
			if !skippedRoot {
				skippedRoot = true
				out = out[:0]
				continue
			}
			out = append(out, '.')
			upperRun = false
			continue
		}
		if c >= 'A' && c <= 'Z' {
			if !upperRun && len(out) > 0 && out[len(out)-1] != '.' {
				out = append(out, '_')
			}
			out = append(out, c-'A'+'a')
			upperRun = true
			continue
		}
		out = append(out, c)
		upperRun = false
	}
	return string(out)
}

// Resolved bundles everything an optimizer run needs, derived from a
// Document.
type Resolved struct {
	Options    setup.Options
	Iterations uint64
	ChunkSize  uint64
	Keep       int
	Threads    int
}

// Resolve builds the setup.Options and run parameters described by doc.
// rankIndex selects which entry of a per-rank threads_per_rank array
// applies to the calling process (0 for a single-process run).
func (doc *Document) Resolve(rankIndex int) (*Resolved, error) {
	if doc.Prec != "" && doc.Prec != "double" {
		return nil, sqserr.BadValuef("prec", "only double precision is supported, got %q", doc.Prec)
	}

	species, err := parseSpeciesList(doc.Structure.Species)
	if err != nil {
		return nil, err
	}
	pbc := [3]bool{true, true, true}
	lattice := geometry.Lattice(doc.Structure.Lattice)
	coords := make(geometry.FracCoords, len(doc.Structure.Coords))
	copy(coords, doc.Structure.Coords)
	base, err := structure.New(lattice, coords, species, pbc)
	if err != nil {
		return nil, err
	}

	supercell := doc.Structure.Supercell
	if supercell != ([3]int{}) && supercell != ([3]int{1, 1, 1}) {
		base, err = base.Supercell(nonZero(supercell[0]), nonZero(supercell[1]), nonZero(supercell[2]))
		if err != nil {
			return nil, err
		}
	}

	mode, err := parseMode(doc.SublatticeMode)
	if err != nil {
		return nil, err
	}
	iterMode, err := parseIterationMode(doc.IterationMode)
	if err != nil {
		return nil, err
	}

	composition, err := resolveComposition(doc.Composition, base)
	if err != nil {
		return nil, err
	}

	radiiSpec, err := resolveShellRadii(doc.ShellRadii, doc.Atol, doc.Rtol, doc.BinWidth, doc.PeakIsolation)
	if err != nil {
		return nil, err
	}
	shellWeights, err := resolveShellWeights(doc.ShellWeights)
	if err != nil {
		return nil, err
	}

	prefactors, err := resolveTensorOverride(doc.Prefactors, "prefactors")
	if err != nil {
		return nil, err
	}
	pairWeights, err := resolveTensorOverride(doc.PairWeights, "pair_weights")
	if err != nil {
		return nil, err
	}
	target, err := resolveTensorOverride(doc.TargetObjective, "target_objective")
	if err != nil {
		return nil, err
	}

	opts := setup.Options{
		Structure:     base,
		Composition:   composition,
		Mode:          mode,
		IterationMode: iterMode,
	}
	if radiiSpec != nil {
		opts.ShellRadii = []setup.ShellRadiiSpec{*radiiSpec}
	}
	if shellWeights != nil {
		opts.ShellWeights = []map[int]float64{shellWeights}
	}
	if prefactors != nil {
		opts.Prefactors = []*tensor.Tensor{prefactors}
	}
	if pairWeights != nil {
		opts.PairWeights = []*tensor.Tensor{pairWeights}
	}
	if target != nil {
		opts.Target = []*tensor.Tensor{target}
	}

	iterations, err := resolveIterations(doc.Iterations, iterMode, composition)
	if err != nil {
		return nil, err
	}
	chunkSize := defaultChunkCeiling
	if doc.ChunkSize != nil {
		chunkSize = int(*doc.ChunkSize)
	} else if iterations < uint64(defaultChunkCeiling) {
		chunkSize = int(iterations)
	}
	keep := defaultKeep
	if doc.Keep != nil {
		if *doc.Keep <= 0 {
			return nil, sqserr.OutOfRangef("keep", "keep must be > 0, got %d", *doc.Keep)
		}
		keep = *doc.Keep
	}
	threads, err := resolveThreads(doc.ThreadsPerRank, rankIndex)
	if err != nil {
		return nil, err
	}

	return &Resolved{
		Options:    opts,
		Iterations: iterations,
		ChunkSize:  uint64(chunkSize),
		Keep:       keep,
		Threads:    threads,
	}, nil
}

// OptimizerConfig fills an optimizer.Config from a Resolved. rankIndex and
// rankCount partition Iterations across cooperating processes; pass (0, 1)
// for a single-process run.
func (r *Resolved) OptimizerConfig(rankIndex, rankCount int, logger *zap.Logger, callback optimizer.Callback) optimizer.Config {
	return optimizer.Config{
		Mode:          r.Options.Mode,
		IterationMode: r.Options.IterationMode,
		Iterations:    r.Iterations,
		ChunkSize:     r.ChunkSize,
		Keep:          r.Keep,
		RankIndex:     rankIndex,
		RankCount:     rankCount,
		Callback:      callback,
		Logger:        logger,
	}
}

func nonZero(v int) int {
	if v <= 0 {
		return 1
	}
	return v
}

func parseSpeciesList(raw []json.RawMessage) ([]uint8, error) {
	out := make([]uint8, len(raw))
	for i, r := range raw {
		var asInt int
		if err := json.Unmarshal(r, &asInt); err == nil {
			if asInt < 0 || asInt > 255 {
				return nil, sqserr.OutOfRangef("structure.species", "atomic number %d out of range [0,255]", asInt)
			}
			out[i] = uint8(asInt)
			continue
		}
		var asStr string
		if err := json.Unmarshal(r, &asStr); err == nil {
			z, ok := elements.AtomicNumber(asStr)
			if !ok {
				return nil, sqserr.BadValuef("structure.species", "unknown element symbol %q", asStr)
			}
			out[i] = z
			continue
		}
		return nil, sqserr.TypeErrorf("structure.species", "species entries must be integers or element symbols")
	}
	return out, nil
}

func parseMode(s string) (setup.Mode, error) {
	switch s {
	case "", "interact":
		return setup.Interact, nil
	case "split":
		return setup.Split, nil
	default:
		return 0, sqserr.BadValuef("sublattice_mode", "unknown sublattice mode %q", s)
	}
}

func parseIterationMode(s string) (setup.IterationMode, error) {
	switch s {
	case "", "random":
		return setup.Random, nil
	case "systematic":
		return setup.Systematic, nil
	default:
		return 0, sqserr.BadValuef("iteration_mode", "unknown iteration mode %q", s)
	}
}

func resolveComposition(docs []SublatticeDoc, base *structure.Structure) (structure.Composition, error) {
	taken := make(map[int]bool, base.NumSites())
	out := make(structure.Composition, len(docs))
	for i, d := range docs {
		sites, err := resolveSites(d.Sites, taken, base)
		if err != nil {
			return nil, err
		}
		for _, s := range sites {
			taken[s] = true
		}
		counts := make(map[uint8]int, len(d.Counts))
		for symbol, n := range d.Counts {
			z, ok := elements.AtomicNumber(symbol)
			if !ok {
				if parsed, perr := strconv.Atoi(symbol); perr == nil {
					z = uint8(parsed)
				} else {
					return nil, sqserr.BadValuef("composition", "unknown species symbol %q", symbol)
				}
			}
			counts[z] = n
		}
		out[i] = structure.Sublattice{Sites: sites, Counts: counts}
	}
	return out, nil
}

func resolveSites(raw json.RawMessage, taken map[int]bool, base *structure.Structure) ([]int, error) {
	if len(raw) == 0 {
		return allUntaken(base, taken), nil
	}
	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		if asString == "all" {
			return allUntaken(base, taken), nil
		}
		return nil, sqserr.BadValuef("composition.sites", "unknown site selector %q", asString)
	}
	var asInts []int
	if err := json.Unmarshal(raw, &asInts); err == nil {
		return asInts, nil
	}
	var asSymbols []string
	if err := json.Unmarshal(raw, &asSymbols); err == nil {
		want := make(map[string]bool, len(asSymbols))
		for _, s := range asSymbols {
			want[s] = true
		}
		var sites []int
		for i, sp := range base.Species {
			if want[elements.Symbol(sp)] {
				sites = append(sites, i)
			}
		}
		return sites, nil
	}
	return nil, sqserr.TypeErrorf("composition.sites", `sites must be "all", a list of indices, or a list of element symbols`)
}

func allUntaken(base *structure.Structure, taken map[int]bool) []int {
	out := make([]int, 0, base.NumSites())
	for i := 0; i < base.NumSites(); i++ {
		if !taken[i] {
			out = append(out, i)
		}
	}
	return out
}

func resolveShellRadii(raw json.RawMessage, atol, rtol, binWidth, peakIsolation float64) (*setup.ShellRadiiSpec, error) {
	spec := setup.ShellRadiiSpec{Atol: atol, Rtol: rtol, BinWidth: binWidth, PeakIsolation: peakIsolation}
	if len(raw) == 0 {
		return &spec, nil
	}
	var policy string
	if err := json.Unmarshal(raw, &policy); err == nil {
		spec.Policy = policy
		return &spec, nil
	}
	var explicit []float64
	if err := json.Unmarshal(raw, &explicit); err == nil {
		spec.Explicit = explicit
		return &spec, nil
	}
	return nil, sqserr.TypeErrorf("shell_radii", `shell_radii must be "naive", "peak", or an explicit list of radii`)
}

func resolveShellWeights(raw map[string]float64) (map[int]float64, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	out := make(map[int]float64, len(raw))
	for k, v := range raw {
		shell, err := strconv.Atoi(k)
		if err != nil {
			return nil, sqserr.TypeErrorf("shell_weights", "shell key %q must be an integer", k)
		}
		out[shell] = v
	}
	return out, nil
}

// resolveTensorOverride accepts an explicit 3D nested array matching the
// (shells, species, species) tensor shape computed during context
// construction; that shape is checked there (setup.buildContext), not
// here. Scalar broadcast, mentioned as a permitted shape in the key table,
// is not supported: doing so would require knowing the species/shell
// count before the structure and composition are resolved, which isn't
// available at this point in parsing.
func resolveTensorOverride(raw json.RawMessage, keyPath string) (*tensor.Tensor, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var nested [][][]float64
	if err := json.Unmarshal(raw, &nested); err != nil {
		return nil, sqserr.TypeErrorf(keyPath, "%s must be a 3D array of shape (shells, species, species)", keyPath)
	}
	m := len(nested)
	if m == 0 {
		return nil, sqserr.OutOfRangef(keyPath, "%s must not be empty", keyPath)
	}
	s := len(nested[0])
	t := tensor.New(m, s)
	for i, plane := range nested {
		if len(plane) != s {
			return nil, sqserr.BadValuef(keyPath, "%s is ragged: shell %d has %d rows, want %d", keyPath, i, len(plane), s)
		}
		for a, row := range plane {
			if len(row) != s {
				return nil, sqserr.BadValuef(keyPath, "%s is ragged: shell %d row %d has %d entries, want %d", keyPath, i, a, len(row), s)
			}
			for b, v := range row {
				t.Set(i, a, b, v)
			}
		}
	}
	return t, nil
}

func resolveIterations(configured *uint64, iterMode setup.IterationMode, composition structure.Composition) (uint64, error) {
	if configured != nil {
		return *configured, nil
	}
	if iterMode == setup.Random {
		return defaultRandomIterations, nil
	}
	freqs := make(map[uint8]int)
	for _, sl := range composition {
		for sp, n := range sl.Counts {
			freqs[sp] += n
		}
	}
	total := rank.NumPermutations(freqs)
	if !total.IsUint64() {
		return 0, sqserr.BadValuef("iterations", "num_permutations exceeds the representable range; set iterations explicitly")
	}
	return total.Uint64(), nil
}

func resolveThreads(raw json.RawMessage, rankIndex int) (int, error) {
	if len(raw) == 0 {
		return 0, nil
	}
	var single int
	if err := json.Unmarshal(raw, &single); err == nil {
		return single, nil
	}
	var perRank []int
	if err := json.Unmarshal(raw, &perRank); err == nil {
		if rankIndex < 0 || rankIndex >= len(perRank) {
			return 0, sqserr.OutOfRangef("threads_per_rank", "no entry for rank %d in a %d-entry threads_per_rank list", rankIndex, len(perRank))
		}
		return perRank[rankIndex], nil
	}
	return 0, sqserr.TypeErrorf("threads_per_rank", "threads_per_rank must be an integer or a list of integers")
}
