package cmd

import (
	"context"
	"fmt"

	"github.com/jmehdipour/wx-ci/internal/model"
	"github.com/jmehdipour/wx-ci/internal/publish"
	"github.com/jmehdipour/wx-ci/internal/sdk"
	"github.com/spf13/cobra"
)

var previewFlags runFlags

var previewCmd = &cobra.Command{
	Use:   "preview",
	Short: "Build a preview and show its QR code",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := runPreview(cmd.Context(), &previewFlags); err != nil {
			return fmt.Errorf("预览失败: %w", err)
		}
		return nil
	},
}

func init() {
	previewFlags.bind(previewCmd)
	previewCmd.Flags().StringVarP(&previewFlags.url, "url", "u", "", "page path with optional ?query")
	previewCmd.Flags().StringVarP(&previewFlags.scene, "scene", "s", "", "scene value (default 1011)")
}

func runPreview(ctx context.Context, f *runFlags) error {
	r, err := newRun(model.RunTypePreview, f)
	if err != nil {
		return err
	}

	if err := r.prepare(ctx); err != nil {
		r.finish(publish.Result{State: model.StateAborted}, err)
		return err
	}

	pagePath, query := sdk.SplitURL(f.url)
	artifact, err := r.runner().Preview(ctx, sdk.PreviewOptions{
		Project:     r.project(),
		Version:     f.version,
		Description: f.description,
		OutputPath:  r.rc.OutputPath,
		PagePath:    pagePath,
		SearchQuery: query,
		Scene:       f.scene,
	})
	if err != nil {
		r.finish(publish.Result{State: model.StateAborted}, err)
		return err
	}
	r.spin.Stop()

	res, err := r.publisher().Preview(ctx, publish.PreviewRequest{
		ArtifactPath: artifact,
		Info:         r.info(),
		Title:        "预览成功",
	})
	r.finish(res, err)
	return err
}
