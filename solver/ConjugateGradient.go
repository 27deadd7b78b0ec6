package solver

import (
	"fmt"

	"github.com/samuelfneumann/arpl/utils/floatutils"
	"gonum.org/v1/gonum/floats"
)

// ConjugateGradient approximately solves Ax = b for x, where A is a
// symmetric positive definite matrix accessed only through the
// matrix-vector product avp. At most iters iterations are performed,
// stopping early once the squared residual norm falls below tol.
func ConjugateGradient(avp VectorProduct, b []float64, iters int,
	tol float64) ([]float64, error) {
	x := make([]float64, len(b))
	r := append([]float64(nil), b...)
	p := append([]float64(nil), b...)
	rDotR := floats.Dot(r, r)

	for i := 0; i < iters && rDotR >= tol; i++ {
		ap, err := avp(p)
		if err != nil {
			return nil, fmt.Errorf("conjugateGradient: %v", err)
		}
		if len(ap) != len(p) {
			return nil, fmt.Errorf("conjugateGradient: product has "+
				"wrong length \n\twant(%v)\n\thave(%v)", len(p), len(ap))
		}

		pAp := floats.Dot(p, ap)
		if pAp <= 0 {
			return nil, fmt.Errorf("conjugateGradient: matrix is not "+
				"positive definite (pᵀAp = %v)", pAp)
		}
		alpha := rDotR / pAp

		floats.AddScaled(x, alpha, p)
		floats.AddScaled(r, -alpha, ap)

		newRDotR := floats.Dot(r, r)
		beta := newRDotR / rDotR
		floats.AddScaledTo(p, r, beta, p)
		rDotR = newRDotR
	}

	if !floatutils.AllFinite(x) {
		return nil, fmt.Errorf("conjugateGradient: non-finite solution")
	}
	return x, nil
}
