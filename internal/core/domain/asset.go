package domain

// AssetKind distinguishes how reward amounts and token ids are interpreted.
type AssetKind string

const (
	AssetKindFungible     AssetKind = "fungible"
	AssetKindNonFungible  AssetKind = "non_fungible"
	AssetKindSemiFungible AssetKind = "semi_fungible"
)

// Asset binds one token contract to one provider address on one chain.
type Asset struct {
	ID           int64
	ChainID      int64
	OnchainID    int64
	TokenAddress string
	Kind         AssetKind
	Provider     string
	Active       bool
}
