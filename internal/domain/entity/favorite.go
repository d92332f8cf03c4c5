package entity

// FavoriteEntry is a labelled address kept by the address book.
type FavoriteEntry struct {
	Address   string `json:"address"`
	Label     string `json:"label"`
	CreatedAt int64  `json:"createdAt"` // unix milliseconds
}
