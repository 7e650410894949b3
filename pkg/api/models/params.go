package models

type ReaderWriteParams struct {
	Text   string  `json:"text"`
	Device *string `json:"device"`
}

type ReaderWriteCancelParams struct {
	Device *string `json:"device"`
}

type MifareDecodeParams struct {
	Data     string    `json:"data" validate:"required,hexdata"`
	Decoders *[]string `json:"decoders" validate:"omitnil,dive,decoder"`
}

type MifareEncodeParams struct {
	Text     string `json:"text"`
	Capacity *int   `json:"capacity" validate:"omitnil,min=1"`
}

type UpdateSettingsParams struct {
	Readers         *[]string `json:"readers"`
	ProbeDevice     *bool     `json:"probeDevice"`
	Debug           *bool     `json:"debug"`
	Key             *string   `json:"key" validate:"omitnil,mfkey"`
	KeyType         *string   `json:"keyType" validate:"omitnil,mfkeytype"`
	WriteSector     *int      `json:"writeSector" validate:"omitnil,min=1,max=39"`
	Decoders        *[]string `json:"decoders" validate:"omitnil,dive,decoder"`
	IncludeTrailers *bool     `json:"includeTrailers"`
}
