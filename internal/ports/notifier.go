package ports

import "context"

// Notifier entrega resúmenes formateados al usuario. Es fire-and-forget:
// el core no gestiona reintentos ni garantías de entrega.
type Notifier interface {
	// Deliver envía un mensaje al destinatario dado. Un recipient vacío
	// usa el destinatario por defecto del adapter.
	Deliver(ctx context.Context, recipient, message string) error
}
