// Package circuits holds the gnark circuits of the local proving backend.
package circuits

import "github.com/consensys/gnark-crypto/ecc"

func Curve() ecc.ID { return ecc.BN254 }
