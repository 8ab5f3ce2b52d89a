package job

import (
	"fmt"
	"strings"

	"github.com/deshack/openfront-discord-bot/internal/models"
	"github.com/deshack/openfront-discord-bot/internal/types"
)

const messageDateLayout = "2006-01-02"

// CompletionMessage renders the text posted when a job completes
func CompletionMessage(progress *models.JobProgress) string {
	job := progress.Job

	var b strings.Builder
	fmt.Fprintf(&b, "Scan complete (%s to %s)\n",
		job.StartDate.UTC().Format(messageDateLayout),
		job.EndDate.UTC().Format(messageDateLayout))

	switch job.JobType {
	case types.JobTypeClanScan:
		fmt.Fprintf(&b, "Clan [%s]: %d games scanned, %d wins recorded",
			job.Tag(), progress.ClanSessions.Total(), job.RecordsAdded)
	default:
		label := "FFA"
		if job.Tag() != "" {
			label = fmt.Sprintf("FFA [%s]", job.Tag())
		}
		fmt.Fprintf(&b, "%s: %d players scanned, %d games checked, %d wins recorded",
			label, progress.Players.Total(), progress.FFAGames.Total(), job.RecordsAdded)
	}
	return b.String()
}
