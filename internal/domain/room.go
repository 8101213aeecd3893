package domain

type RoomID int64

type Room struct {
	ID      RoomID `json:"id"`
	Name    string `json:"name"`
	IsGroup bool   `json:"is_group"`
}
