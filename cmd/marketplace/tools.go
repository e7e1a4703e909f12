// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

package main

import (
	"fmt"
	"os"
	"sort"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/zeebo/errs"
	"go.uber.org/zap"

	"storj.io/common/process"

	"github.com/mozilla/marketplace/marketplace"
	"github.com/mozilla/marketplace/marketplace/apps"
	"github.com/mozilla/marketplace/marketplace/regions"
	"github.com/mozilla/marketplace/marketplace/validation"
)

var (
	updateManifestsCmd = &cobra.Command{
		Use:   "update-manifests [app ids...]",
		Short: "Refresh hosted app manifests, queueing every hosted app when no id is given",
		RunE:  cmdUpdateManifests,
	}
	validateCmd = &cobra.Command{
		Use:   "validate <path> [manifest url]",
		Short: "Validate a local packaged app or manifest",
		Args:  cobra.RangeArgs(1, 2),
		RunE:  cmdValidate,
	}
	signCmd = &cobra.Command{
		Use:   "sign <version id>",
		Short: "Sign the package of a version",
		Args:  cobra.ExactArgs(1),
		RunE:  cmdSign,
	}
	excludeRegionCmd = &cobra.Command{
		Use:   "exclude-region",
		Short: "Exclude apps that opted out of new regions from the given regions",
		RunE:  cmdExcludeRegion,
	}
	cleanupValidationCmd = &cobra.Command{
		Use:   "cleanup-validation",
		Short: "Remove every stored file validation result",
		RunE:  cmdCleanupValidation,
	}
	dumpAppsCmd = &cobra.Command{
		Use:   "dump-apps [app ids...]",
		Short: "Export the listing data of apps, every listed app when no id is given",
		RunE:  cmdDumpApps,
	}
	fetchIconCmd = &cobra.Command{
		Use:   "fetch-icon <app ids...>",
		Short: "Store the icons named by the latest manifest of apps",
		Args:  cobra.MinimumNArgs(1),
		RunE:  cmdFetchIcon,
	}
	addPreviewCmd = &cobra.Command{
		Use:   "add-preview <app id> <image path>",
		Short: "Add a preview image to an app",
		Args:  cobra.ExactArgs(2),
		RunE:  cmdAddPreview,
	}
	deleteAppCmd = &cobra.Command{
		Use:   "delete-app <app id>",
		Short: "Delete an app and notify staff",
		Args:  cobra.ExactArgs(1),
		RunE:  cmdDeleteApp,
	}

	toolCmds = []*cobra.Command{
		updateManifestsCmd,
		validateCmd,
		signCmd,
		excludeRegionCmd,
		cleanupValidationCmd,
		dumpAppsCmd,
		fetchIconCmd,
		addPreviewCmd,
		deleteAppCmd,
	}

	toolFlags struct {
		CheckHash bool
		Reviewer  bool
		Resign    bool
		Regions   regions.List
		EmailOnly bool
		Position  int
		By        string
		Notes     string
		Reason    string
	}
)

func bindToolFlags() {
	updateManifestsCmd.Flags().BoolVar(&toolFlags.CheckHash, "check-hash", true, "skip apps whose manifest did not change")
	signCmd.Flags().BoolVar(&toolFlags.Reviewer, "reviewer", false, "sign with the reviewer certificate")
	signCmd.Flags().BoolVar(&toolFlags.Resign, "resign", false, "sign again when a signed package exists")
	excludeRegionCmd.Flags().Var(&toolFlags.Regions, "regions", "comma separated region slugs or ids")
	excludeRegionCmd.Flags().BoolVar(&toolFlags.EmailOnly, "email", false, "only mail the developers of apps added to the regions")
	addPreviewCmd.Flags().IntVar(&toolFlags.Position, "position", 0, "position of the preview among the app previews")
	deleteAppCmd.Flags().StringVar(&toolFlags.By, "by", "", "who deletes the app")
	deleteAppCmd.Flags().StringVar(&toolFlags.Notes, "notes", "", "staff notes sent with the deletion notice")
	deleteAppCmd.Flags().StringVar(&toolFlags.Reason, "reason", "", "reason given by the developer")
}

func parseIDs(args []string) ([]int64, error) {
	ids := make([]int64, 0, len(args))
	for _, arg := range args {
		id, err := strconv.ParseInt(arg, 10, 64)
		if err != nil {
			return nil, errs.New("invalid id %q", arg)
		}
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, k int) bool { return ids[i] < ids[k] })
	return ids, nil
}

func cmdUpdateManifests(cmd *cobra.Command, args []string) error {
	ctx, _ := process.Ctx(cmd)
	log := zap.L()

	ids, err := parseIDs(args)
	if err != nil {
		return err
	}

	return withPeer(cmd, func(peer *marketplace.Peer) error {
		if len(ids) == 0 {
			return peer.ManifestUpdate.Service.QueueAll(ctx)
		}

		failed := map[int64]int{}
		err := peer.ManifestUpdate.Service.UpdateManifests(ctx, ids, toolFlags.CheckHash, failed)
		for id, count := range failed {
			log.Warn("manifest could not be fetched", zap.Int64("app", id), zap.Int("failures", count))
		}
		return err
	})
}

func cmdValidate(cmd *cobra.Command, args []string) (err error) {
	ctx, _ := process.Ctx(cmd)

	validator, err := validation.NewValidator(zap.L().Named("validation"), runCfg.Validation)
	if err != nil {
		return err
	}

	file, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer func() { err = errs.Combine(err, file.Close()) }()

	info, err := file.Stat()
	if err != nil {
		return err
	}

	url := ""
	if len(args) > 1 {
		url = args[1]
	}
	result, err := validator.Validate(ctx, file, info.Size(), url)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), result.JSON())
	if err == nil && result.Errors > 0 {
		err = errs.New("validation found %d errors", result.Errors)
	}
	return err
}

func cmdSign(cmd *cobra.Command, args []string) error {
	ctx, _ := process.Ctx(cmd)

	versionID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return errs.New("invalid version id %q", args[0])
	}

	return withPeer(cmd, func(peer *marketplace.Peer) error {
		path, err := peer.Signer.Sign(ctx, versionID, toolFlags.Reviewer, toolFlags.Resign)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), path)
		return err
	})
}

func cmdExcludeRegion(cmd *cobra.Command, args []string) error {
	ctx, _ := process.Ctx(cmd)

	if len(toolFlags.Regions) == 0 {
		return errs.New("--regions is required")
	}

	return withPeer(cmd, func(peer *marketplace.Peer) error {
		if toolFlags.EmailOnly {
			return peer.Developers.SendNewRegionEmails(ctx, toolFlags.Regions.IDs())
		}
		return peer.Developers.ExcludeNewRegion(ctx, toolFlags.Regions.IDs())
	})
}

func cmdCleanupValidation(cmd *cobra.Command, args []string) error {
	ctx, _ := process.Ctx(cmd)

	return withPeer(cmd, func(peer *marketplace.Peer) error {
		deleted, err := peer.GC.CleanupValidations(ctx)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(cmd.OutOrStdout(), "removed %d validation results\n", deleted)
		return err
	})
}

func cmdDumpApps(cmd *cobra.Command, args []string) error {
	ctx, _ := process.Ctx(cmd)

	ids, err := parseIDs(args)
	if err != nil {
		return err
	}

	return withPeer(cmd, func(peer *marketplace.Peer) error {
		if len(ids) == 0 {
			index, err := peer.Dumper.DumpAll(ctx)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "dumped %d apps\n", index.Count)
			return err
		}
		index, err := peer.Dumper.Dump(ctx, ids)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(cmd.OutOrStdout(), "dumped %d apps\n", index.Count)
		return err
	})
}

func cmdFetchIcon(cmd *cobra.Command, args []string) error {
	ctx, _ := process.Ctx(cmd)

	ids, err := parseIDs(args)
	if err != nil {
		return err
	}

	return withPeer(cmd, func(peer *marketplace.Peer) error {
		for _, id := range ids {
			latest, err := peer.Apps.LatestVersion(ctx, id)
			if err != nil {
				return err
			}
			if latest == nil {
				zap.L().Warn("app has no versions", zap.Int64("app", id))
				continue
			}
			file, err := peer.Apps.VersionFile(ctx, latest.ID)
			if err != nil {
				return err
			}
			if file == nil {
				zap.L().Warn("version has no file", zap.Int64("app", id), zap.Int64("version", latest.ID))
				continue
			}
			if err := peer.Media.QueueFetchIcon(ctx, id, file.ID); err != nil {
				return err
			}
		}
		return nil
	})
}

func cmdAddPreview(cmd *cobra.Command, args []string) error {
	ctx, _ := process.Ctx(cmd)

	ids, err := parseIDs(args[:1])
	if err != nil {
		return err
	}
	content, err := os.ReadFile(args[1])
	if err != nil {
		return err
	}

	return withPeer(cmd, func(peer *marketplace.Peer) error {
		app, err := peer.Apps.Get(ctx, ids[0])
		if err != nil {
			return err
		}
		preview, err := peer.Media.AddPreview(ctx, app, content, toolFlags.Position)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), preview.ID)
		return err
	})
}

func cmdDeleteApp(cmd *cobra.Command, args []string) error {
	ctx, _ := process.Ctx(cmd)

	ids, err := parseIDs(args)
	if err != nil {
		return err
	}

	return withPeer(cmd, func(peer *marketplace.Peer) error {
		app, err := peer.Apps.Get(ctx, ids[0])
		if err != nil {
			return err
		}
		return peer.Apps.Delete(ctx, app, apps.DeleteOptions{
			By:     toolFlags.By,
			Notes:  toolFlags.Notes,
			Reason: toolFlags.Reason,
		})
	})
}
