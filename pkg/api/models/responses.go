package models

import (
	"net/http"
	"time"
)

type SettingsResponse struct {
	Readers         []string `json:"readers"`
	ProbeDevice     bool     `json:"probeDevice"`
	Debug           bool     `json:"debug"`
	KeyType         string   `json:"keyType"`
	WriteSector     int      `json:"writeSector"`
	Decoders        []string `json:"decoders"`
	IncludeTrailers bool     `json:"includeTrailers"`
}

type HistoryResponseEntry struct {
	Time    time.Time `json:"time"`
	Action  string    `json:"action"`
	Source  string    `json:"source"`
	Type    string    `json:"type"`
	UID     string    `json:"uid"`
	Text    string    `json:"text"`
	Data    string    `json:"data"`
	Success bool      `json:"success"`
	Error   string    `json:"error,omitempty"`
}

type HistoryResponse struct {
	Entries []HistoryResponseEntry `json:"entries"`
}

type TokenResponse struct {
	Type     string    `json:"type"`
	UID      string    `json:"uid"`
	Text     string    `json:"text"`
	Data     string    `json:"data"`
	ScanTime time.Time `json:"scanTime"`
	Source   string    `json:"source"`
}

type TokensResponse struct {
	Active []TokenResponse `json:"active"`
	Last   *TokenResponse  `json:"last,omitempty"`
}

type ReaderResponse struct {
	Connected bool   `json:"connected"`
	Device    string `json:"device"`
	Info      string `json:"info"`
}

type ReadersResponse struct {
	Readers []ReaderResponse `json:"readers"`
}

type StatusResponse struct {
	Version string           `json:"version"`
	Readers []ReaderResponse `json:"readers"`
	Active  []TokenResponse  `json:"active"`
}

func (sr *StatusResponse) Render(w http.ResponseWriter, r *http.Request) error {
	return nil
}

type VersionResponse struct {
	Version  string `json:"version"`
	Platform string `json:"platform"`
}

type MifareDecodeResponse struct {
	Layout  string `json:"layout"`
	Text    string `json:"text"`
	Decoder string `json:"decoder"`
}

type MifareEncodeResponse struct {
	Blocks []string `json:"blocks"`
}
