package gmail

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/rotisserie/eris"
)

// Send submits an RFC-2822 message through the Gmail send endpoint. The body
// is sent as UTF-8 plain text with an encoded subject header.
func (c *httpClient) Send(ctx context.Context, refreshToken, to, subject, body string) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	token, err := c.accessTokenFor(ctx, refreshToken)
	if err != nil {
		return eris.Wrap(err, "gmail: send")
	}

	raw := buildRFC2822(to, subject, body)
	payload, err := json.Marshal(map[string]string{
		"raw": base64.RawURLEncoding.EncodeToString([]byte(raw)),
	})
	if err != nil {
		return eris.Wrap(err, "gmail: marshal send payload")
	}

	endpoint := c.baseURL + "/gmail/v1/users/me/messages/send"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(string(payload)))
	if err != nil {
		return eris.Wrap(err, "gmail: new send request")
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return eris.Wrap(err, "gmail: send")
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		errPayload, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("gmail send %s: %s", resp.Status, strings.TrimSpace(string(errPayload)))
	}
	return nil
}

func buildRFC2822(to, subject, body string) string {
	var b strings.Builder
	b.WriteString("To: " + to + "\r\n")
	b.WriteString("Subject: " + mime.QEncoding.Encode("utf-8", subject) + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=\"utf-8\"\r\n")
	b.WriteString("\r\n")
	b.WriteString(body)
	return b.String()
}
