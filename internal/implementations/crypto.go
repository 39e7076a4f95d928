package implementations

import (
	"context"
	"crypto/hmac"
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"hash"

	"github.com/google/uuid"
	"github.com/rendis/flowcheck/pkg/schema"
)

const defaultHashAlgorithm = "sha256"

func cryptoFunctions() map[string]Func {
	return map[string]Func{
		"hash": cryptoHash,
		"hmac": cryptoHMAC,
	}
}

func idFunctions() map[string]Func {
	return map[string]Func{
		"uuid": func(context.Context, map[string]any) (any, error) {
			return uuid.New().String(), nil
		},
	}
}

// hashFunc returns a new hash.Hash for the given algorithm name.
func hashFunc(algorithm string) (func() hash.Hash, error) {
	switch algorithm {
	case "sha256":
		return sha256.New, nil
	case "sha512":
		return sha512.New, nil
	case "sha384":
		return sha512.New384, nil
	case "md5":
		return md5.New, nil
	case "sha1":
		return sha1.New, nil
	default:
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "unsupported hash algorithm: %s", algorithm)
	}
}

func cryptoHash(_ context.Context, params map[string]any) (any, error) {
	data, err := requireString(params, "data", "utilities.crypto.hash")
	if err != nil {
		return nil, err
	}
	newHash, err := hashFunc(optionalString(params, "algorithm", defaultHashAlgorithm))
	if err != nil {
		return nil, err
	}

	h := newHash()
	h.Write([]byte(data))
	return hex.EncodeToString(h.Sum(nil)), nil
}

func cryptoHMAC(_ context.Context, params map[string]any) (any, error) {
	data, err := requireString(params, "data", "utilities.crypto.hmac")
	if err != nil {
		return nil, err
	}
	key, err := requireString(params, "key", "utilities.crypto.hmac")
	if err != nil {
		return nil, err
	}
	newHash, err := hashFunc(optionalString(params, "algorithm", defaultHashAlgorithm))
	if err != nil {
		return nil, err
	}

	mac := hmac.New(newHash, []byte(key))
	mac.Write([]byte(data))
	return hex.EncodeToString(mac.Sum(nil)), nil
}
