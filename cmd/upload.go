package cmd

import (
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/freeoffice/fieldcam/internal/models"
	"github.com/freeoffice/fieldcam/internal/slots"
)

func newUploadCmd(a *app) *cobra.Command {
	var (
		form      formFlags
		slotFiles []string
		submit    bool
	)

	cmd := &cobra.Command{
		Use:   "upload",
		Short: "Upload photos into ticket slots and optionally submit the ticket",
		Long: `Uploads each --slot NAME=PATH pair to the file endpoint, all slots in parallel.
The server path of every slot is printed. With --submit the ticket is
validated against the uploaded slots and created.

Import slots: ImageIn1, ImageIn2, ImageIn3
Export slots: ImageExport1, ImageExport2, ImageExport3, ImageSign`,
		Example: `  # Upload two intake photos
  fieldcam upload --slot ImageIn1=a.png --slot ImageIn2=b.png

  # Upload and submit an export ticket
  fieldcam upload --form export --slot ImageExport1=load.png --slot ImageSign=sign.png \
    --submit --from 3 --to 7 --type 1 --unit 2 --amount 12 \
    --driver "Tran Van B" --cccd 012345678901 --plate 51C-12345`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(slotFiles) == 0 {
				return fmt.Errorf("at least one --slot NAME=PATH is required")
			}

			files := make(map[string]models.File, len(slotFiles))
			for _, pair := range slotFiles {
				name, path, ok := strings.Cut(pair, "=")
				if !ok || name == "" || path == "" {
					return fmt.Errorf("invalid --slot %q, expected NAME=PATH", pair)
				}
				if _, dup := files[name]; dup {
					return fmt.Errorf("slot %s given more than once", name)
				}
				file, err := readFile(path)
				if err != nil {
					return err
				}
				files[name] = file
			}

			c, err := a.authedClient()
			if err != nil {
				return err
			}
			m, err := form.manager(c, slots.NewPreviewRegistry())
			if err != nil {
				return err
			}
			defer m.Close()

			g, ctx := errgroup.WithContext(cmd.Context())
			for name, file := range files {
				g.Go(func() error {
					_, err := m.Upload(ctx, name, file)
					if err != nil {
						return fmt.Errorf("slot %s: %w", name, err)
					}
					return nil
				})
			}
			if err := g.Wait(); err != nil {
				return err
			}

			result := map[string]any{"slots": m.Paths()}
			if submit {
				raw, err := form.submit(cmd.Context(), c, m.Paths())
				if err != nil {
					return err
				}
				result["response"] = decodeResponse(raw)
			}
			return printYAML(cmd.OutOrStdout(), result)
		},
	}

	form.registerKind(cmd)
	form.registerFields(cmd)
	cmd.Flags().StringArrayVar(&slotFiles, "slot", nil, "Slot and file as NAME=PATH (repeatable)")
	cmd.Flags().BoolVar(&submit, "submit", false, "Create the ticket after uploading")

	return cmd
}

// readFile loads a photo from disk for upload
func readFile(path string) (models.File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return models.File{}, fmt.Errorf("failed to read %s: %w", path, err)
	}
	contentType := mime.TypeByExtension(strings.ToLower(filepath.Ext(path)))
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}
	return models.File{
		Name:        filepath.Base(path),
		ContentType: contentType,
		Data:        data,
	}, nil
}
