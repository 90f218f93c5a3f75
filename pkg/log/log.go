package log

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

var logger = logrus.New()

func init() {
	logger.Formatter = &logrus.TextFormatter{
		TimestampFormat: time.RFC3339,
		FullTimestamp:   true,
		DisableColors:   false,
		ForceColors:     true,
	}
}

func Print(c *fiber.Ctx) *logrus.Entry {
	if c == nil {
		return logger.WithFields(logrus.Fields{})
	}

	remoteIP := c.IP()
	if v := c.Locals("remote_ip"); v != nil {
		if ip, ok := v.(string); ok && ip != "" {
			remoteIP = ip
		}
	}
	return logger.WithFields(logrus.Fields{
		"remote_ip": remoteIP,
		"method":    c.Method(),
		"uri":       c.OriginalURL(),
	})
}

// CampaignOp returns an entry for batch lifecycle operations.
func CampaignOp(batchID int64, op string) *logrus.Entry {
	return logger.WithFields(logrus.Fields{
		"batch_id": batchID,
		"op":       op,
	})
}

// EventOp returns an entry for inbound provider event processing.
func EventOp(kind string, providerID string) *logrus.Entry {
	return logger.WithFields(logrus.Fields{
		"event_kind":  kind,
		"provider_id": providerID,
	})
}

// SendOp returns an entry for one outbound send attempt.
func SendOp(batchID int64, messageID int64, number string) *logrus.Entry {
	return logger.WithFields(logrus.Fields{
		"batch_id":   batchID,
		"message_id": messageID,
		"number":     maskNumber(number),
	})
}

// maskNumber hides the last four digits in log output.
func maskNumber(number string) string {
	if len(number) < 5 {
		return number
	}
	return number[:len(number)-4] + "xxxx"
}
