package services

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"studio_booking_echo/internal/models"

	"github.com/midtrans/midtrans-go"
	"github.com/midtrans/midtrans-go/snap"
)

type PaymentService struct {
	db             *gorm.DB
	midtransClient *MidtransService
}

func NewPaymentService(db *gorm.DB, midtransClient *MidtransService) *PaymentService {
	return &PaymentService{
		db:             db,
		midtransClient: midtransClient,
	}
}

// BookingOrderID formats the gateway order id carrying the booking id, so a
// callback can be routed back without any extra lookup table.
func BookingOrderID(bookingID uint) string {
	return fmt.Sprintf("booking-%d-%d", bookingID, time.Now().Unix())
}

// ParseBookingOrderID recovers the booking id from a gateway order id.
func ParseBookingOrderID(orderID string) (uint, error) {
	var bookingID uint
	var ts int64
	if _, err := fmt.Sscanf(orderID, "booking-%d-%d", &bookingID, &ts); err != nil {
		return 0, fmt.Errorf("unrecognized order id %q: %w", orderID, err)
	}
	return bookingID, nil
}

// CheckActiveSession returns the booking's active payment session, or nil
// when none exists.
func (s *PaymentService) CheckActiveSession(bookingID uint) (*models.PaymentSession, error) {
	var existingSession models.PaymentSession
	err := s.db.Where("booking_id = ? AND is_active = ?", bookingID, true).Order("created_at desc").First(&existingSession).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &existingSession, nil
}

// InitiatePaymentResult holds the result of an initiation attempt
type InitiatePaymentResult struct {
	Token       string
	RedirectURL string
	IsExisting  bool
}

// InitiatePayment starts or resumes a payment session for a pending booking.
// A still-pending session at the gateway is reused unless forceNew; settled
// sessions abort with an error so a booking is never charged twice. The
// session token becomes part of the public return URL the gateway redirects
// to after payment.
func (s *PaymentService) InitiatePayment(booking *models.Booking, user *models.User, forceNew bool, returnBaseURL string) (*InitiatePaymentResult, error) {
	existingSession, err := s.CheckActiveSession(booking.ID)
	if err != nil {
		return nil, err
	}

	if existingSession != nil {
		statusResp, err := s.midtransClient.CheckTransaction(existingSession.OrderID)
		if err == nil {
			if statusResp.TransactionStatus == "settlement" || statusResp.TransactionStatus == "capture" {
				return nil, fmt.Errorf("payment already made")
			}

			if statusResp.TransactionStatus == "deny" || statusResp.TransactionStatus == "expire" || statusResp.TransactionStatus == "cancel" || statusResp.TransactionStatus == "failure" {
				existingSession.IsActive = false
				s.db.Save(existingSession)
				// Proceed to create new
			} else {
				// Pending at the gateway
				if forceNew {
					s.midtransClient.CancelTransaction(existingSession.OrderID)
					existingSession.IsActive = false
					s.db.Save(existingSession)
				} else {
					var midtransResp snap.Response
					if err := json.Unmarshal(existingSession.ResponseMetadata, &midtransResp); err == nil {
						return &InitiatePaymentResult{
							Token:       midtransResp.Token,
							RedirectURL: midtransResp.RedirectURL,
							IsExisting:  true,
						}, nil
					}
					// Broken metadata, start over
					existingSession.IsActive = false
					s.db.Save(existingSession)
				}
			}
		} else {
			// Status check failed, assume the session is broken locally
			existingSession.IsActive = false
			s.db.Save(existingSession)
		}
	}

	orderID := BookingOrderID(booking.ID)
	token := uuid.NewString()
	callbackURL := fmt.Sprintf("%s/payments/return/%s", returnBaseURL, token)

	req := &snap.Request{
		TransactionDetails: midtrans.TransactionDetails{
			OrderID:  orderID,
			GrossAmt: int64(booking.Price),
		},
		CustomerDetail: &midtrans.CustomerDetails{
			FName: user.FullName,
			Phone: user.Phone,
		},
		Items: &[]midtrans.ItemDetails{
			{
				ID:    fmt.Sprintf("slot-%s", booking.SlotID),
				Name:  fmt.Sprintf("%s lesson with %s on %s %s", booking.LessonType, booking.Trainer, booking.Date, booking.Time),
				Price: int64(booking.Price),
				Qty:   1,
			},
		},
		Callbacks: &snap.Callbacks{
			Finish: callbackURL,
		},
	}

	resp, err := s.midtransClient.CreateTransaction(orderID, int64(booking.Price), req)
	if err != nil {
		return nil, err
	}

	reqBytes, _ := json.Marshal(req)
	respBytes, _ := json.Marshal(resp)

	session := models.PaymentSession{
		BookingID:        booking.ID,
		UserID:           booking.UserID,
		PaymentGateway:   models.PaymentGatewayMidtrans,
		OrderID:          orderID,
		Token:            token,
		IsActive:         true,
		RequestMetadata:  reqBytes,
		ResponseMetadata: respBytes,
	}
	s.db.Create(&session)

	return &InitiatePaymentResult{
		Token:       resp.Token,
		RedirectURL: resp.RedirectURL,
		IsExisting:  false,
	}, nil
}

// DeactivateSessions marks every active session of a booking inactive, used
// once a callback settles or the booking reaches a terminal state.
func (s *PaymentService) DeactivateSessions(bookingID uint) error {
	return s.db.Model(&models.PaymentSession{}).
		Where("booking_id = ? AND is_active = ?", bookingID, true).
		Update("is_active", false).Error
}

// SessionByToken resolves the public payment-return token to its session.
func (s *PaymentService) SessionByToken(token string) (*models.PaymentSession, error) {
	var session models.PaymentSession
	if err := s.db.Where("token = ?", token).First(&session).Error; err != nil {
		return nil, err
	}
	return &session, nil
}
