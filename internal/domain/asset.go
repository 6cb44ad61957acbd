package domain

// AssetMetadata describes a data asset as indexed by the marketplace.
type AssetMetadata struct {
	Name            string // asset display name
	Description     string // short description
	Author          string // publisher name
	Created         string // creation timestamp as reported by the index
	PreviewImageURL string // optional preview image (empty if none)
}

// DatatokenRef is a datatoken entry attached to an indexed asset.
type DatatokenRef struct {
	Symbol  string
	Address string
}

// AssetRecord is a single data asset from the marketplace search index.
// Records are read-only: they are fetched per request and never mutated
// or stored locally.
type AssetRecord struct {
	ID         string // index id, or the NFT address when the index omits one
	NFTAddress string // owning ERC-721 contract
	Metadata   AssetMetadata
	Datatokens []DatatokenRef
}

// DisplayID returns the identifier used to key the asset in the UI.
func (a *AssetRecord) DisplayID() string {
	if a.ID != "" {
		return a.ID
	}
	return a.NFTAddress
}
