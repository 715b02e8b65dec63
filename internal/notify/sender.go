package notify

import (
	"context"
	"fmt"
	"log"

	"github.com/flatwatch/flatwatch/internal/listing"
)

// LogSender writes deliveries to the process log. It stands in for a real
// messaging channel in development and smoke deployments.
type LogSender struct{}

func (LogSender) SendListing(_ context.Context, userID int64, l listing.Listing, language string) error {
	log.Printf("[notify] user=%d lang=%s %s", userID, language, FormatSummary(l))
	return nil
}

// FormatSummary renders the one-line listing summary used by senders.
func FormatSummary(l listing.Listing) string {
	return fmt.Sprintf("%s | %.0f € | %.1f Zi | %.0f m² | %s | %s",
		l.Title, l.Price, l.Rooms, l.Area, l.City, l.URL)
}
