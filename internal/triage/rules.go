package triage

import (
	"regexp"
	"strings"

	"github.com/atiendo/backend/internal/models"
)

const (
	IntentTracking    = "tracking"
	IntentFacturacion = "facturacion"
	IntentReclamo     = "reclamo"
	IntentCotizacion  = "cotizacion"
	IntentInfo        = "info"
	IntentOtro        = "otro"
)

type rule struct {
	intent     string
	keywords   []string
	confidence float64
}

// Order matters: the first rule with a matching keyword wins.
var rules = []rule{
	{IntentTracking, []string{"seguimiento", "tracking", "pedido", "envío"}, 0.8},
	{IntentFacturacion, []string{"factura", "deuda", "pago", "cuenta"}, 0.8},
	{IntentReclamo, []string{"reclamo", "problema", "dañado", "defectuoso", "reembolso"}, 0.9},
	{IntentCotizacion, []string{"cotización", "precio", "costo"}, 0.7},
	{IntentInfo, []string{"info", "información", "consulta"}, 0.6},
}

var trackingNumberRe = regexp.MustCompile(`[A-Z0-9]{6,}`)

const (
	replyTrackingFound   = "Estoy consultando el estado de tu envío. En un momento te confirmo dónde se encuentra tu pedido."
	replyTrackingMissing = "Para ayudarte con el seguimiento necesito tu número de envío. ¿Me lo podrías compartir?"
	replyFacturacion     = "Estoy revisando tu cuenta. En breve te envío el detalle de tus facturas y pagos."
	replyReclamo         = "Lamentamos el inconveniente. Para registrar tu reclamo, ¿podrías indicarnos el número de pedido y una descripción del problema?"
	replyCotizacion      = "Con gusto preparamos una cotización. ¿Qué producto o servicio te interesa y en qué cantidad?"
	replyInfo            = "¡Hola! Con gusto te ayudamos. ¿Qué información necesitas?"
	replyOtro            = "Gracias por tu mensaje. Un agente te responderá a la brevedad."
	replyEmpty           = "¿Podrías darnos más detalles sobre tu consulta?"
)

// Empty is the result for a conversation with nothing to classify.
func Empty() models.TriageResult {
	return models.TriageResult{
		Intent:           IntentOtro,
		Confidence:       0.3,
		MissingFields:    []string{},
		SuggestedActions: []models.SuggestedAction{},
		SuggestedReply:   replyEmpty,
	}
}

// Classify runs the keyword rules over text. It never sets AutopilotEligible;
// that depends on tenant settings.
func Classify(text, customerID string) models.TriageResult {
	if strings.TrimSpace(text) == "" {
		return Empty()
	}
	lower := strings.ToLower(text)

	res := models.TriageResult{
		Intent:           IntentOtro,
		Confidence:       0.5,
		MissingFields:    []string{},
		SuggestedActions: []models.SuggestedAction{},
		SuggestedReply:   replyOtro,
	}
	for _, r := range rules {
		if !containsAny(lower, r.keywords) {
			continue
		}
		res.Intent = r.intent
		res.Confidence = r.confidence
		break
	}

	switch res.Intent {
	case IntentTracking:
		if number := trackingNumberRe.FindString(text); number != "" {
			res.SuggestedActions = append(res.SuggestedActions, models.SuggestedAction{
				Type:    "lookup_tracking",
				Payload: map[string]any{"trackingNumber": number},
			})
			res.SuggestedReply = replyTrackingFound
		} else {
			res.MissingFields = append(res.MissingFields, "trackingNumber")
			res.SuggestedActions = append(res.SuggestedActions, models.SuggestedAction{Type: "request_tracking_number"})
			res.SuggestedReply = replyTrackingMissing
		}
	case IntentFacturacion:
		res.SuggestedActions = append(res.SuggestedActions, models.SuggestedAction{
			Type:    "fetch_invoices",
			Payload: map[string]any{"customerId": customerID},
		})
		res.SuggestedReply = replyFacturacion
	case IntentReclamo:
		res.MissingFields = append(res.MissingFields, "orderNumber", "description")
		res.SuggestedActions = append(res.SuggestedActions, models.SuggestedAction{
			Type:    "create_ticket",
			Payload: map[string]any{"priority": string(models.PriorityHigh), "category": models.CategoryReclamo},
		})
		res.SuggestedReply = replyReclamo
	case IntentCotizacion:
		res.SuggestedActions = append(res.SuggestedActions, models.SuggestedAction{Type: "create_quote"})
		res.SuggestedReply = replyCotizacion
	case IntentInfo:
		res.SuggestedReply = replyInfo
	}
	return res
}

// Eligible applies the tenant's autopilot policy to r.
func Eligible(r models.TriageResult, settings models.TenantSettings) bool {
	return settings.AllowsCategory(r.Category()) &&
		r.Confidence >= settings.ConfidenceThreshold &&
		len(r.MissingFields) == 0
}

func containsAny(s string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(s, k) {
			return true
		}
	}
	return false
}
