package domain

import "time"

// ============================================================
// Dealership rows (veiculos, clientes, vendas)
// ============================================================

// Vehicle statuses as stored in veiculos.status.
const (
	VehicleAvailable   = "Disponível"
	VehicleSold        = "Vendido"
	VehicleMaintenance = "Em Manutenção"
)

// ClientStatusLead is the status given to clients created by the assistant.
const ClientStatusLead = "Lead"

// Vehicle is a row of veiculos. Only the columns the assistant reads are mapped.
type Vehicle struct {
	ID     int64  `json:"id"`
	Marca  string `json:"marca"`
	Modelo string `json:"modelo"`
	Ano    int    `json:"ano,omitempty"`
	Status string `json:"status"`
}

// Client is a row of clientes.
type Client struct {
	ID       int64  `json:"id"`
	Nome     string `json:"nome"`
	Email    string `json:"email,omitempty"`
	Telefone string `json:"telefone,omitempty"`
	Origem   string `json:"origem,omitempty"`
	Status   string `json:"status"`
}

// NewClient is the payload for inserting a client.
type NewClient struct {
	Nome      string
	Email     string
	Telefone  string
	Status    string
	CreatedAt time.Time
}

// NewSale is the payload for inserting a sale. Valor is nil when the amount
// was never provided.
type NewSale struct {
	VehicleID int64
	Valor     *float64
	DataVenda time.Time
	CriadoEm  time.Time
}

// VehicleQuery filters veiculos. Status is an exact match; Marca and Modelo
// are case-insensitive substring matches. Empty fields are ignored.
type VehicleQuery struct {
	Status string
	Marca  string
	Modelo string
	Limit  int
}

// ClientQuery filters clientes, with the same semantics as VehicleQuery.
type ClientQuery struct {
	Status string
	Nome   string
	Origem string
	Limit  int
}
