package models

// ResponseStatus is the outcome category a caller of the pipeline sees.
type ResponseStatus string

const (
	ResponseCompleted    ResponseStatus = "completed"
	ResponsePending      ResponseStatus = "pending"
	ResponseFailed       ResponseStatus = "failed"
	ResponseNotValidated ResponseStatus = "not_validated"
)

// FrontendRecord is a PropertyRecord reshaped into the field names the
// listing page renders, plus the pipeline status tags. SoftMissingFields
// lists absent fields that do not affect the extraction status.
type FrontendRecord struct {
	URL               string           `json:"url"`
	Status            ResponseStatus   `json:"status"`
	ExtractionStatus  ExtractionStatus `json:"extractionStatus,omitempty"`
	MissingFields     []FieldName      `json:"missingFields"`
	SoftMissingFields []FieldName      `json:"softMissingFields"`
	Portal            string           `json:"portal,omitempty"`
	Message           string           `json:"message,omitempty"`
	Contact           string           `json:"contact,omitempty"`

	Titulo         string         `json:"titulo,omitempty"`
	LanceMinimo    float64        `json:"lanceMinimo,omitempty"`
	TipoImovel     string         `json:"tipoImovel,omitempty"`
	Endereco       string         `json:"endereco,omitempty"`
	Cidade         string         `json:"cidade,omitempty"`
	Estado         string         `json:"estado,omitempty"`
	ValorAvaliacao float64        `json:"valorAvaliacao,omitempty"`
	DataLeilao     string         `json:"dataLeilao,omitempty"`
	Imagens        []string       `json:"imagens,omitempty"`
	Documentos     []string       `json:"documentos,omitempty"`
	Descricao      string         `json:"descricao,omitempty"`
	TipoLeilao     string         `json:"tipoLeilao,omitempty"`
	Historico      []AuctionEvent `json:"historico,omitempty"`
}

// NewFrontendRecord copies the record attributes into presentation fields.
func NewFrontendRecord(url string, r PropertyRecord) *FrontendRecord {
	return &FrontendRecord{
		URL:               url,
		MissingFields:     []FieldName{},
		SoftMissingFields: []FieldName{},
		Titulo:            r.Title,
		LanceMinimo:       r.MinimumBid,
		TipoImovel:        r.PropertyType,
		Endereco:          r.Address,
		Cidade:            r.City,
		Estado:            r.State,
		ValorAvaliacao:    r.EvaluatedValue,
		DataLeilao:        r.AuctionDate,
		Imagens:           r.Images,
		Documentos:        r.Documents,
		Descricao:         r.Description,
		TipoLeilao:        r.AuctionType,
		Historico:         r.AuctionHistory,
	}
}

// PurgeResult is returned by the administrative purge.
type PurgeResult struct {
	Found bool `json:"found"`
}
