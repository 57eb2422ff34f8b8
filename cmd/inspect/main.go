// Command inspect dumps the raw store contents for local debugging: point it
// at a Badger directory, pick a key prefix, read the table.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/fxamacker/cbor/v2"
	"github.com/gookit/color"
	"github.com/olekukonko/tablewriter"
)

type conversationRow struct {
	ID          string `cbor:"id"`
	Low         string `cbor:"low"`
	High        string `cbor:"high"`
	ListingRef  string `cbor:"listing"`
	CreatedAt   int64  `cbor:"created_at"`
	LastSeq     uint64 `cbor:"last_seq"`
	LastSender  string `cbor:"last_sender"`
	LastPreview string `cbor:"last_preview"`
}

type messageRow struct {
	Seq          uint64 `cbor:"seq"`
	Conversation string `cbor:"conversation"`
	Sender       string `cbor:"sender"`
	Body         string `cbor:"body"`
	At           int64  `cbor:"at"`
}

type userRow struct {
	ID          string `cbor:"id"`
	DisplayName string `cbor:"display_name"`
	CreatedAt   int64  `cbor:"created_at"`
}

func main() {
	dbPath := flag.String("db", "/tmp/market-chat/badger", "Path to badger DB")
	prefix := flag.String("prefix", "conv:", "Prefix to scan (conv:, msg:, user:, convkey:, uconv:, idem:)")
	flag.Parse()

	db, err := badger.Open(badger.DefaultOptions(*dbPath).
		WithReadOnly(true).
		WithLoggingLevel(badger.ERROR))
	if err != nil {
		log.Fatal("Error while opening Badger: ", err)
	}
	defer db.Close()

	color.New(color.BgBlack, color.FgGreen).Printf("  ====== scanning %q in %s ======\n", *prefix, *dbPath)

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Key", "Type", "Timestamp", "Detail"})
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")

	rows := 0
	err = db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefixBytes := []byte(*prefix)
		for it.Seek(prefixBytes); it.ValidForPrefix(prefixBytes); it.Next() {
			item := it.Item()
			key := string(item.Key())

			err := item.Value(func(v []byte) error {
				kind, timestamp, detail := describe(key, v)
				table.Append([]string{key, kind, timestamp, detail})
				rows++
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		log.Fatal(err)
	}

	table.Render()
	fmt.Printf("\n%d entries\n", rows)
}

// describe decodes one value according to its key namespace. Decoding errors
// never stop the scan, the row just stays raw.
func describe(key string, value []byte) (kind, timestamp, detail string) {
	switch {
	case strings.HasPrefix(key, "conv:"):
		var row conversationRow
		if err := cbor.Unmarshal(value, &row); err != nil {
			return "RAW", "--:--:--", decodeError(err, value)
		}
		detail := fmt.Sprintf("%s <-> %s seq=%d last=%q by %s",
			row.Low, row.High, row.LastSeq, row.LastPreview, row.LastSender)
		if row.ListingRef != "" {
			detail += " listing=" + row.ListingRef
		}
		return "CONV", formatTime(row.CreatedAt), detail

	case strings.HasPrefix(key, "msg:"):
		var row messageRow
		if err := cbor.Unmarshal(value, &row); err != nil {
			return "RAW", "--:--:--", decodeError(err, value)
		}
		return "MSG", formatTime(row.At),
			fmt.Sprintf("#%d %s: %q", row.Seq, row.Sender, row.Body)

	case strings.HasPrefix(key, "user:"):
		var row userRow
		if err := cbor.Unmarshal(value, &row); err != nil {
			return "RAW", "--:--:--", decodeError(err, value)
		}
		return "USER", formatTime(row.CreatedAt),
			fmt.Sprintf("%s (%s)", row.ID, row.DisplayName)

	case strings.HasPrefix(key, "convkey:"), strings.HasPrefix(key, "uconv:"):
		return "INDEX", "--:--:--", "-> " + string(value)

	case strings.HasPrefix(key, "idem:"):
		return "IDEM", "--:--:--", fmt.Sprintf("replays seq %s", value)

	default:
		return "RAW", "--:--:--", fmt.Sprintf("Size: %d bytes", len(value))
	}
}

func decodeError(err error, value []byte) string {
	return fmt.Sprintf("decode failed (%v), %d bytes", err, len(value))
}

func formatTime(unixNano int64) string {
	if unixNano == 0 {
		return "--:--:--"
	}
	return time.Unix(0, unixNano).Format("15:04:05")
}
