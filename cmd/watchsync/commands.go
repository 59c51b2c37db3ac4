package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/amaumene/watchsync/internal/controllers"
	"github.com/amaumene/watchsync/internal/services/anilist"
	"github.com/amaumene/watchsync/internal/services/mirror"
	"github.com/spf13/cobra"
)

func newFlushCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "flush",
		Short: "Send queued tracker updates now",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()

			result, err := a.session.FlushNow(context.Background())
			if errors.Is(err, controllers.ErrNoCredential) {
				fmt.Fprintf(cmd.OutOrStdout(), "not logged in to AniList, %d updates queued\n", result.Remaining)
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "flushed %d, remaining %d\n", result.Flushed, result.Remaining)
			return err
		},
	}
}

func newHistoryCmd() *cobra.Command {
	history := &cobra.Command{Use: "history", Short: "Inspect and edit the watch history"}

	history.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List history entries, newest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()

			entries, err := a.library.History()
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no history")
				return nil
			}
			for _, e := range entries {
				fmt.Fprintf(cmd.OutOrStdout(), "%d\t%s\tep %d/%d\t%s\n",
					e.MediaID, e.Title, e.WatchedEpisode, e.TotalEpisodes, e.Time().Format(time.RFC3339))
			}
			return nil
		},
	})

	history.AddCommand(&cobra.Command{
		Use:   "remove <mediaId>",
		Short: "Remove a single history entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mediaID, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid media id %q", args[0])
			}

			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.library.RemoveFromHistory(context.Background(), mediaID); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %d\n", mediaID)
			return nil
		},
	})

	history.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Remove every history entry",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.library.ClearHistory(context.Background()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "history cleared")
			return nil
		},
	})

	history.AddCommand(&cobra.Command{
		Use:   "sync",
		Short: "Merge the mirrored history into the local store",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()

			userID, ok := a.mirrorIdentity.Identity()
			if !ok {
				return fmt.Errorf("no mirror identity, run login mirror first")
			}
			result, err := a.reconciler.Merge(context.Background(), userID)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "pulled %d, pushed %d, %d entries\n", result.Pulled, result.Pushed, result.Total)
			return nil
		},
	})

	return history
}

func newLoginCmd() *cobra.Command {
	login := &cobra.Command{Use: "login", Short: "Store service credentials"}

	var expiresIn time.Duration
	anilistCmd := &cobra.Command{
		Use:   "anilist <token>",
		Short: "Validate and store an AniList access token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()

			token, err := a.tracker.Login(context.Background(), a.trackerTokens, args[0], expiresIn)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "logged in to AniList as %s (%d)\n", token.UserName, token.UserID)
			return nil
		},
	}
	anilistCmd.Flags().DurationVar(&expiresIn, "expires-in", 0, "token lifetime (0 = no expiry)")

	mirrorCmd := &cobra.Command{
		Use:   "mirror <userId> <token>",
		Short: "Store the remote mirror identity",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.mirrorIdentity.Save(mirror.Credentials{UserID: args[0], Token: args[1]}); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "mirror identity set to %s\n", args[0])
			return nil
		},
	}

	login.AddCommand(anilistCmd, mirrorCmd)
	return login
}

func newLogoutCmd() *cobra.Command {
	var trackerOnly, mirrorOnly bool

	cmd := &cobra.Command{
		Use:   "logout",
		Short: "Forget stored credentials, keeping local data",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()

			if !mirrorOnly {
				if err := a.trackerTokens.DeleteToken(); err != nil && !errors.Is(err, anilist.ErrNoToken) {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "logged out of AniList")
			}
			if !trackerOnly {
				if err := a.mirrorIdentity.Clear(); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "mirror identity cleared")
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&trackerOnly, "tracker", false, "only log out of AniList")
	cmd.Flags().BoolVar(&mirrorOnly, "mirror", false, "only clear the mirror identity")
	return cmd
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show identities, history size and queued updates",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()

			entries, err := a.library.History()
			if err != nil {
				return err
			}
			userID, hasMirror := a.mirrorIdentity.Identity()
			_, hasTracker := a.trackingIdent.Credential()

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "history entries:  %d\n", len(entries))
			fmt.Fprintf(out, "pending updates:  %d\n", a.queue.Size())
			fmt.Fprintf(out, "anilist:          %s\n", present(hasTracker, ""))
			fmt.Fprintf(out, "mirror identity:  %s\n", present(hasMirror, userID))
			for _, item := range a.queue.Items() {
				fmt.Fprintf(out, "  queued %d\tep %d/%d\t%s\n", item.MediaID, item.EpisodeReached, item.TotalEpisodes, item.Status())
			}
			return nil
		},
	}
}

func present(ok bool, detail string) string {
	switch {
	case !ok:
		return "not logged in"
	case detail != "":
		return "logged in as " + detail
	default:
		return "logged in"
	}
}
