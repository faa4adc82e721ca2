package handlers

import (
	"errors"
	"net/http"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"

	"crowdfund/internal/domain"
	"crowdfund/internal/ledger"
	"crowdfund/internal/middleware"
)

const (
	codeBadRequest   = "bad_request"
	codeUnauthorized = "unauthorized"
	codeInternal     = "internal"
	codeUnavailable  = "unavailable"
)

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Kind    string `json:"kind,omitempty"`
}

type errorMapping struct {
	err    error
	code   string
	status int
}

// errorMappings is checked in order; reconciliation comes first because it wraps
// the transfer or store error that caused it.
var errorMappings = []errorMapping{
	{domain.ErrReconciliationRequired, "reconciliation_required", http.StatusInternalServerError},
	{domain.ErrInvalidTargetAmount, "invalid_target_amount", http.StatusBadRequest},
	{domain.ErrInvalidDeadline, "invalid_deadline", http.StatusBadRequest},
	{domain.ErrInvalidBeneficiary, "invalid_beneficiary", http.StatusBadRequest},
	{domain.ErrInvalidAmount, "invalid_amount", http.StatusBadRequest},
	{domain.ErrInvalidAddress, "invalid_address", http.StatusBadRequest},
	{ledger.ErrInvalidAmountFormat, "invalid_amount_format", http.StatusBadRequest},
	{domain.ErrNotCreator, "not_creator", http.StatusForbidden},
	{domain.ErrUnauthorized, codeUnauthorized, http.StatusUnauthorized},
	{domain.ErrCampaignNotFound, "campaign_not_found", http.StatusNotFound},
	{domain.ErrNotFound, "not_found", http.StatusNotFound},
	{domain.ErrCampaignNotActive, "campaign_not_active", http.StatusConflict},
	{domain.ErrCampaignExpired, "campaign_expired", http.StatusConflict},
	{domain.ErrCampaignAlreadyDisbursed, "campaign_already_disbursed", http.StatusConflict},
	{domain.ErrGoalNotReached, "goal_not_reached", http.StatusConflict},
	{domain.ErrDeadlineNotReached, "deadline_not_reached", http.StatusConflict},
	{domain.ErrCampaignStillActive, "campaign_still_active", http.StatusConflict},
	{domain.ErrAlreadyRefunded, "already_refunded", http.StatusConflict},
	{domain.ErrNoDonationFound, "no_donation_found", http.StatusConflict},
	{domain.ErrReconciliationPending, "reconciliation_pending", http.StatusConflict},
	{domain.ErrOverflow, "overflow", http.StatusUnprocessableEntity},
	{domain.ErrTransferFailed, "transfer_failed", http.StatusBadGateway},
	{domain.ErrTransferUnconfirmed, "transfer_unconfirmed", http.StatusGatewayTimeout},
}

// fail maps a domain error to a status and localized message.
func (a *App) fail(w http.ResponseWriter, r *http.Request, err error) {
	for _, m := range errorMappings {
		if errors.Is(err, m.err) {
			if m.status >= http.StatusInternalServerError {
				a.Logger.Error().Err(err).
					Str("request_id", middleware.RequestIDFromContext(r.Context())).
					Str("code", m.code).
					Msg("request failed")
			}
			a.writeError(w, r, m.status, m.code, domain.KindOf(err))
			return
		}
	}
	a.Logger.Error().Err(err).
		Str("request_id", middleware.RequestIDFromContext(r.Context())).
		Msg("unhandled error")
	a.writeError(w, r, http.StatusInternalServerError, codeInternal, domain.KindInternal)
}

func (a *App) error(w http.ResponseWriter, r *http.Request, status int, code string) {
	a.writeError(w, r, status, code, "")
}

func (a *App) writeError(w http.ResponseWriter, r *http.Request, status int, code string, kind domain.ErrorKind) {
	a.json(w, status, errorBody{Error: errorDetail{
		Code:    code,
		Message: localize(middleware.LocaleFromContext(r.Context()), code),
		Kind:    string(kind),
	}})
}

var messages = map[string][3]string{
	// code: {en, id, vi}
	codeBadRequest:               {"The request body is invalid.", "Isi permintaan tidak valid.", "Nội dung yêu cầu không hợp lệ."},
	codeUnauthorized:             {"Authentication is required.", "Autentikasi diperlukan.", "Cần xác thực."},
	codeInternal:                 {"Something went wrong.", "Terjadi kesalahan.", "Đã xảy ra lỗi."},
	codeUnavailable:              {"The service is not ready.", "Layanan belum siap.", "Dịch vụ chưa sẵn sàng."},
	"not_found":                  {"Not found.", "Tidak ditemukan.", "Không tìm thấy."},
	"reconciliation_required":    {"Funds moved but the ledger was not updated; the transfer is flagged for review.", "Dana telah berpindah tetapi buku besar belum diperbarui; transfer ditandai untuk ditinjau.", "Tiền đã chuyển nhưng sổ cái chưa cập nhật; giao dịch đã được đánh dấu để xem xét."},
	"invalid_target_amount":      {"Target amount must be greater than zero.", "Jumlah target harus lebih dari nol.", "Số tiền mục tiêu phải lớn hơn 0."},
	"invalid_deadline":           {"Deadline must be in the future.", "Tenggat waktu harus di masa depan.", "Hạn chót phải ở tương lai."},
	"invalid_beneficiary":        {"Beneficiary address is required.", "Alamat penerima wajib diisi.", "Cần địa chỉ người thụ hưởng."},
	"invalid_amount":             {"Amount must be greater than zero.", "Jumlah harus lebih dari nol.", "Số tiền phải lớn hơn 0."},
	"invalid_address":            {"Address is not valid.", "Alamat tidak valid.", "Địa chỉ không hợp lệ."},
	"invalid_amount_format":      {"Amount must be a whole number of token units.", "Jumlah harus bilangan bulat satuan token.", "Số tiền phải là số nguyên đơn vị token."},
	"not_creator":                {"Only the campaign creator can do this.", "Hanya pembuat kampanye yang dapat melakukan ini.", "Chỉ người tạo chiến dịch mới có thể thực hiện."},
	"campaign_not_found":         {"Campaign not found.", "Kampanye tidak ditemukan.", "Không tìm thấy chiến dịch."},
	"campaign_not_active":        {"Campaign is not active.", "Kampanye tidak aktif.", "Chiến dịch không hoạt động."},
	"campaign_expired":           {"Campaign deadline has passed.", "Tenggat kampanye telah lewat.", "Chiến dịch đã hết hạn."},
	"campaign_already_disbursed": {"Funds were already disbursed.", "Dana sudah dicairkan.", "Tiền đã được giải ngân."},
	"goal_not_reached":           {"Campaign goal has not been reached.", "Target kampanye belum tercapai.", "Chiến dịch chưa đạt mục tiêu."},
	"deadline_not_reached":       {"Campaign deadline has not been reached.", "Tenggat kampanye belum tercapai.", "Chưa đến hạn chót chiến dịch."},
	"campaign_still_active":      {"Campaign must be ended before refunds.", "Kampanye harus diakhiri sebelum pengembalian dana.", "Chiến dịch phải kết thúc trước khi hoàn tiền."},
	"already_refunded":           {"Donation was already refunded.", "Donasi sudah dikembalikan.", "Khoản quyên góp đã được hoàn."},
	"no_donation_found":          {"No donation found for this account.", "Tidak ada donasi untuk akun ini.", "Không có khoản quyên góp nào cho tài khoản này."},
	"reconciliation_pending":     {"Campaign funds are locked pending manual review.", "Dana kampanye dikunci menunggu peninjauan manual.", "Tiền chiến dịch bị khóa chờ xem xét thủ công."},
	"overflow":                   {"Amount exceeds the supported range.", "Jumlah melebihi batas yang didukung.", "Số tiền vượt quá giới hạn hỗ trợ."},
	"transfer_failed":            {"Token transfer failed.", "Transfer token gagal.", "Chuyển token thất bại."},
	"transfer_unconfirmed":       {"Token transfer was not confirmed in time.", "Transfer token belum terkonfirmasi.", "Giao dịch token chưa được xác nhận kịp thời."},
}

var messageCatalog = func() catalog.Catalog {
	b := catalog.NewBuilder(catalog.Fallback(language.English))
	for code, tr := range messages {
		_ = b.SetString(language.English, code, tr[0])
		_ = b.SetString(language.Indonesian, code, tr[1])
		_ = b.SetString(language.Vietnamese, code, tr[2])
	}
	return b
}()

func localize(locale, code string) string {
	tag, err := language.Parse(locale)
	if err != nil {
		tag = language.English
	}
	p := message.NewPrinter(tag, message.Catalog(messageCatalog))
	return p.Sprintf(message.Key(code, messages[code][0]))
}
