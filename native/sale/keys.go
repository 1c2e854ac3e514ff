package sale

import "strconv"

var (
	salePrefix      = []byte("sale/")
	tokenKeySegment = []byte("/token/")
	nativeKeySuffix = []byte("/native")
	assetsKeySuffix = []byte("/assets")
)

func saleIDSegment(id SaleID) []byte {
	return strconv.AppendUint(append([]byte(nil), salePrefix...), uint64(id), 10)
}

func tokenConfigKey(id SaleID, symbol string) []byte {
	key := saleIDSegment(id)
	key = append(key, tokenKeySegment...)
	return append(key, symbol...)
}

func nativeConfigKey(id SaleID) []byte {
	return append(saleIDSegment(id), nativeKeySuffix...)
}

func assetIndexKey(id SaleID) []byte {
	return append(saleIDSegment(id), assetsKeySuffix...)
}

// TokenConfigStorageKey returns the raw storage key used to persist a token
// sale configuration.
func TokenConfigStorageKey(id SaleID, symbol string) []byte {
	return tokenConfigKey(id, symbol)
}

// NativeConfigStorageKey returns the raw storage key used to persist the
// native sale configuration.
func NativeConfigStorageKey(id SaleID) []byte {
	return nativeConfigKey(id)
}

// AssetIndexStorageKey returns the raw storage key of the per-sale token
// index.
func AssetIndexStorageKey(id SaleID) []byte {
	return assetIndexKey(id)
}
