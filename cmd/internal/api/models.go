package api

import (
	"time"

	"unidash/cmd/internal/delivery"
	"unidash/cmd/internal/member"
)

type createRequestBody struct {
	ItemDescription  string  `json:"item_description"`
	Category         string  `json:"category"`
	PaymentStatus    string  `json:"payment_status"`
	PickupLocation   string  `json:"pickup_location"`
	DeliveryLocation string  `json:"delivery_location"`
	Note             *string `json:"note"`
	RequesterPhone   string  `json:"requester_phone"`
}

type completeRequestBody struct {
	Code string `json:"code"`
}

type requestResponse struct {
	ID               string    `json:"id"`
	RequesterID      string    `json:"requester_id"`
	DelivererID      *string   `json:"deliverer_id,omitempty"`
	ItemDescription  string    `json:"item_description"`
	Category         string    `json:"category"`
	PaymentStatus    string    `json:"payment_status"`
	PickupLocation   string    `json:"pickup_location"`
	DeliveryLocation string    `json:"delivery_location"`
	Note             *string   `json:"note,omitempty"`
	Code             *string   `json:"code,omitempty"`
	Status           string    `json:"status"`
	CreatedAt        time.Time `json:"created_at"`
}

type openRequestResponse struct {
	ID               string    `json:"id"`
	ItemDescription  string    `json:"item_description"`
	Category         string    `json:"category"`
	PaymentStatus    string    `json:"payment_status"`
	PickupLocation   string    `json:"pickup_location"`
	DeliveryLocation string    `json:"delivery_location"`
	Note             *string   `json:"note,omitempty"`
	RequesterName    string    `json:"requester_name"`
	CreatedAt        time.Time `json:"created_at"`
}

type ownRequestResponse struct {
	ID               string    `json:"id"`
	ItemDescription  string    `json:"item_description"`
	Status           string    `json:"status"`
	Code             *string   `json:"code,omitempty"`
	DeliveryLocation string    `json:"delivery_location"`
	DelivererName    *string   `json:"deliverer_name,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

type activeDeliveryResponse struct {
	ID               string    `json:"id"`
	ItemDescription  string    `json:"item_description"`
	PickupLocation   string    `json:"pickup_location"`
	DeliveryLocation string    `json:"delivery_location"`
	Note             *string   `json:"note,omitempty"`
	RequesterName    string    `json:"requester_name"`
	RequesterPhone   *string   `json:"requester_phone,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

type memberResponse struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	AvatarURL *string   `json:"avatar_url,omitempty"`
	Phone     *string   `json:"phone,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type statsResponse struct {
	RequestsCreated     int `json:"requests_created"`
	DeliveriesCompleted int `json:"deliveries_completed"`
}

func toRequestResponse(r delivery.Request) requestResponse {
	return requestResponse{
		ID:               r.ID,
		RequesterID:      r.RequesterID,
		DelivererID:      r.DelivererID,
		ItemDescription:  r.ItemDescription,
		Category:         r.Category,
		PaymentStatus:    r.PaymentStatus,
		PickupLocation:   r.PickupLocation,
		DeliveryLocation: r.DeliveryLocation,
		Note:             r.Note,
		Code:             r.Code,
		Status:           string(r.Status),
		CreatedAt:        r.CreatedAt,
	}
}

func toMemberResponse(m member.Member) memberResponse {
	return memberResponse{
		ID:        m.ID,
		Email:     m.Email,
		Name:      m.Name,
		AvatarURL: m.AvatarURL,
		Phone:     m.Phone,
		CreatedAt: m.CreatedAt,
	}
}
