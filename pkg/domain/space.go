package domain

import "time"

// Entity names a stored collection keyed by a natural key
type Entity string

// stored entities
const (
	EntityPositions Entity = "positions"
	EntityPictures  Entity = "pictures"
	EntityDatasets  Entity = "datasets"
	EntityImages    Entity = "images"
)

// Record is a single row to upsert under its natural key
type Record struct {
	Entity Entity
	Key    any
	Fields map[string]any
}

// ISSPosition is one reported position of the station
type ISSPosition struct {
	ID         int64     `db:"id" json:"id"`
	Timestamp  int64     `db:"ts" json:"timestamp"`
	Latitude   float64   `db:"latitude" json:"latitude"`
	Longitude  float64   `db:"longitude" json:"longitude"`
	Altitude   *float64  `db:"altitude" json:"altitude,omitempty"`
	Velocity   *float64  `db:"velocity" json:"velocity,omitempty"`
	Visibility string    `db:"visibility" json:"visibility,omitempty"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// Picture is an astronomy picture of the day
type Picture struct {
	ID          int64     `db:"id" json:"id"`
	Date        string    `db:"date" json:"date"`
	Title       string    `db:"title" json:"title"`
	Explanation string    `db:"explanation" json:"explanation"`
	URL         string    `db:"url" json:"url"`
	HDURL       string    `db:"hd_url" json:"hdurl,omitempty"`
	MediaType   string    `db:"media_type" json:"media_type"`
	Copyright   string    `db:"copyright" json:"copyright,omitempty"`
	FetchedAt   time.Time `db:"fetched_at" json:"fetched_at"`
}

// Dataset is an entry of the OSDR biological dataset catalog
type Dataset struct {
	ID          int64     `db:"id" json:"id"`
	DatasetID   string    `db:"dataset_id" json:"dataset_id"`
	Title       string    `db:"title" json:"title"`
	Description string    `db:"description" json:"description,omitempty"`
	Mission     string    `db:"mission" json:"mission,omitempty"`
	Instrument  string    `db:"instrument" json:"instrument,omitempty"`
	DataType    string    `db:"data_type" json:"data_type,omitempty"`
	FileSizeMB  *float64  `db:"file_size_mb" json:"file_size_mb,omitempty"`
	RawData     string    `db:"raw_data" json:"-"`
	FetchedAt   time.Time `db:"fetched_at" json:"fetched_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// Image is a NASA imagery item distributed through RSS
type Image struct {
	ID          int64     `db:"id" json:"id"`
	GUID        string    `db:"guid" json:"guid"`
	Title       string    `db:"title" json:"title"`
	Link        string    `db:"link" json:"link"`
	Description string    `db:"description" json:"description,omitempty"`
	ImageURL    string    `db:"image_url" json:"image_url,omitempty"`
	Published   time.Time `db:"published" json:"published"`
	FetchedAt   time.Time `db:"fetched_at" json:"fetched_at"`
}
