// Package hash computes the canonical order hash and verifies maker
// signatures over it. The hash is the order's identity everywhere: repository
// key, settlement lookups and signature verification all depend on every
// caller encoding the fields identically.
package hash

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"

	"github.com/krishishah/0xygen-Relay-sub000/internal/relay/model"
	"github.com/krishishah/0xygen-Relay-sub000/pkg/errors"
)

// ethSignPrefix is the prefix wallets apply before signing a 32-byte digest.
const ethSignPrefix = "\x19Ethereum Signed Message:\n32"

// OrderHash returns the keccak256 digest of the order's economic terms,
// encoded in fixed field order with Solidity-equivalent widths: addresses as
// 20 bytes, uint256 values as 32-byte big-endian.
func OrderHash(o *model.Order) (common.Hash, error) {
	makerAmount, err := uint256Bytes("makerTokenAmount", o.MakerTokenAmount)
	if err != nil {
		return common.Hash{}, err
	}
	takerAmount, err := uint256Bytes("takerTokenAmount", o.TakerTokenAmount)
	if err != nil {
		return common.Hash{}, err
	}
	salt, err := uint256Bytes("salt", o.Salt)
	if err != nil {
		return common.Hash{}, err
	}
	if o.ExpirationUnixTimestampSec < 0 {
		return common.Hash{}, errors.NewInvalidOrderField("expirationUnixTimestampSec", "must not be negative")
	}
	expiration := uint256FromInt64(o.ExpirationUnixTimestampSec)

	buf := make([]byte, 0, 4*common.AddressLength+4*32)
	buf = append(buf, o.Maker.Bytes()...)
	buf = append(buf, o.Taker.Bytes()...)
	buf = append(buf, o.MakerTokenAddress.Bytes()...)
	buf = append(buf, o.TakerTokenAddress.Bytes()...)
	buf = append(buf, makerAmount[:]...)
	buf = append(buf, takerAmount[:]...)
	buf = append(buf, expiration[:]...)
	buf = append(buf, salt[:]...)

	return common.BytesToHash(crypto.Keccak256(buf)), nil
}

// ValidateAmounts checks every numeric order field for the uint256 contract
// without computing the hash.
func ValidateAmounts(o *model.Order) error {
	fields := []struct {
		name  string
		value decimal.Decimal
	}{
		{"makerTokenAmount", o.MakerTokenAmount},
		{"takerTokenAmount", o.TakerTokenAmount},
		{"makerFee", o.MakerFee},
		{"takerFee", o.TakerFee},
		{"salt", o.Salt},
	}
	for _, f := range fields {
		if _, err := uint256Bytes(f.name, f.value); err != nil {
			return err
		}
	}
	if o.ExpirationUnixTimestampSec < 0 {
		return errors.NewInvalidOrderField("expirationUnixTimestampSec", "must not be negative")
	}
	return nil
}

// RecoverSigner returns the address that produced sig over the prefixed order
// hash.
func RecoverSigner(orderHash common.Hash, sig model.ECSignature) (common.Address, error) {
	if sig.V != 27 && sig.V != 28 {
		return common.Address{}, errors.NewInvalidOrderField("ecSignature.v", "must be 27 or 28")
	}
	digest := crypto.Keccak256(append([]byte(ethSignPrefix), orderHash.Bytes()...))
	raw := make([]byte, 65)
	copy(raw[:32], sig.R.Bytes())
	copy(raw[32:64], sig.S.Bytes())
	raw[64] = sig.V - 27
	pub, err := crypto.SigToPub(digest, raw)
	if err != nil {
		return common.Address{}, errors.NewInvalidOrderField("ecSignature", "signature does not recover a public key")
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// VerifySignature checks that the order's signature was produced by its
// maker. The returned hash is the canonical order hash.
func VerifySignature(so *model.SignedOrder) (common.Hash, error) {
	h, err := OrderHash(&so.Order)
	if err != nil {
		return common.Hash{}, err
	}
	signer, err := RecoverSigner(h, so.Signature)
	if err != nil {
		return common.Hash{}, err
	}
	if signer != so.Maker {
		return common.Hash{}, errors.NewInvalidOrderField("ecSignature", "not signed by maker")
	}
	return h, nil
}

// maxUint256Digits is the decimal digit count of 2^256-1.
const maxUint256Digits = 78

func uint256Bytes(field string, d decimal.Decimal) ([32]byte, error) {
	var out [32]byte
	if d.Sign() < 0 {
		return out, errors.NewInvalidOrderField(field, "must not be negative")
	}
	if !d.IsInteger() {
		return out, errors.NewInvalidOrderField(field, "must be an integer")
	}
	// Reject by digit count before BigInt expands the exponent; a value like
	// 1e100000000 would otherwise materialize a 100-million-digit integer.
	if int64(d.NumDigits())+int64(d.Exponent()) > maxUint256Digits {
		return out, errors.NewInvalidOrderField(field, "exceeds 256 bits")
	}
	v := d.BigInt()
	if v.BitLen() > 256 {
		return out, errors.NewInvalidOrderField(field, "exceeds 256 bits")
	}
	v.FillBytes(out[:])
	return out, nil
}

func uint256FromInt64(v int64) [32]byte {
	var out [32]byte
	big.NewInt(v).FillBytes(out[:])
	return out
}
