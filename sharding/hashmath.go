package sharding

import (
	"encoding/hex"
	"math/big"
)

// The HASH comparator's domain is the 128-bit space of MD5 digests;
// splitting a HASH shard means bisecting that space as big-endian
// unsigned integers, not parsing it as a Go numeric type.

func hexToBigInt(s string) [16]byte {
	return hexToBigIntBytes(s)
}

func hexToBigIntBytes(s string) [16]byte {
	var out [16]byte
	b, err := hex.DecodeString(s)
	if err != nil {
		return out
	}
	copy(out[16-len(b):], b)
	return out
}

func midpoint(lo, hi [16]byte) [16]byte {
	loInt := new(big.Int).SetBytes(lo[:])
	hiInt := new(big.Int).SetBytes(hi[:])
	sum := new(big.Int).Add(loInt, hiInt)
	mid := sum.Rsh(sum, 1)

	var out [16]byte
	b := mid.Bytes()
	copy(out[16-len(b):], b)
	return out
}

func bytesToHex(b [16]byte) string {
	return hex.EncodeToString(b[:])
}
