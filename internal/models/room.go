package models

// Room is a bookable teaching room.
type Room struct {
	ID       string `db:"id" json:"id"`
	Code     string `db:"code" json:"code"`
	Capacity int    `db:"capacity" json:"capacity"`
}
