// Package testutil provides deterministic random data for tests.
//
// This package is intended for use in tests only.
//
//	rng := testutil.NewRNG(seed)
//	img := rng.Page()        // random page image
//	buf := rng.Bytes(100)    // random byte slice
//	i := rng.Intn(8)         // random index
package testutil
