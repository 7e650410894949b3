package models

import (
	"encoding/json"

	"github.com/google/uuid"
)

const (
	NotificationReadersConnected    = "readers.added"
	NotificationReadersDisconnected = "readers.removed"
	NotificationTokensAdded         = "tokens.added"
	NotificationTokensRemoved       = "tokens.removed"
	NotificationTokensWritten       = "tokens.written"
)

const (
	MethodVersion            = "version"
	MethodReaders            = "readers"
	MethodReadersWrite       = "readers.write"
	MethodReadersWriteCancel = "readers.write.cancel"
	MethodTokens             = "tokens"
	MethodHistory            = "tokens.history"
	MethodSettings           = "settings"
	MethodSettingsUpdate     = "settings.update"
	MethodMifareDecode       = "mifare.decode"
	MethodMifareEncode       = "mifare.encode"
)

type Notification struct {
	Method string `json:"method"`
	Params any    `json:"params,omitempty"`
}

type RequestObject struct {
	JsonRpc string          `json:"jsonrpc"`
	Id      *uuid.UUID      `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type ErrorObject struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type ResponseObject struct {
	JsonRpc string       `json:"jsonrpc"`
	Id      uuid.UUID    `json:"id"`
	Result  any          `json:"result"`
	Error   *ErrorObject `json:"error,omitempty"`
}
