package objective

import (
	"math"
	"testing"

	"github.com/sarat-asymmetrica/sqsgen/internal/structure"
	"github.com/sarat-asymmetrica/sqsgen/internal/tensor"
)

func TestCountBondsAsymmetricIncrement(t *testing.T) {
	// Two pairs in shell 0: a hetero pair (0,1) and a homo pair (0,0).
	pairs := []structure.AtomPair{
		{I: 0, J: 1, S: 1}, // species[0]=0 species[1]=1: hetero
		{I: 2, J: 3, S: 1}, // species[2]=0 species[3]=0: homo
	}
	species := []int{0, 1, 0, 0}
	shellIndex := map[int]int{1: 0}

	bond := tensor.New(1, 2)
	CountBonds(bond, pairs, species, shellIndex)

	// hetero pair (a=0,b=1): bond[0,b,a]=bond[0,1,0]++ always; since a!=b also
	// bond[0,a,b]=bond[0,0,1]++.
	if got := bond.At(0, 1, 0); got != 1 {
		t.Fatalf("bond[0,1,0] = %v, want 1", got)
	}
	if got := bond.At(0, 0, 1); got != 1 {
		t.Fatalf("bond[0,0,1] = %v, want 1", got)
	}
	// homo pair (a=0,b=0): only bond[0,0,0]++ once (a==b skips the second increment).
	if got := bond.At(0, 0, 0); got != 1 {
		t.Fatalf("bond[0,0,0] = %v, want 1", got)
	}
}

func TestSROAndScalarRoundTrip(t *testing.T) {
	bond := tensor.New(1, 2)
	bond.Set(0, 0, 1, 4)
	bond.Set(0, 1, 0, 4)

	prefactors := tensor.New(1, 2)
	prefactors.Set(0, 0, 1, 0.1)
	prefactors.Set(0, 1, 0, 0.1)

	sro := SRO(bond, prefactors)
	want := 1 - 0.1*4
	if got := sro.At(0, 0, 1); math.Abs(got-want) > 1e-12 {
		t.Fatalf("sro[0,0,1] = %v, want %v", got, want)
	}

	weights := tensor.New(1, 2)
	weights.Set(0, 0, 1, 1)
	weights.Set(0, 1, 0, 1)
	target := tensor.New(1, 2)

	scalar := Scalar(sro, weights, target)
	wantScalar := math.Abs(sro.At(0, 0, 1)) + math.Abs(sro.At(0, 1, 0))
	if math.Abs(scalar-wantScalar) > 1e-12 {
		t.Fatalf("scalar = %v, want %v", scalar, wantScalar)
	}
}
