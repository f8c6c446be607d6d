package cli

import (
	"fmt"
	"net/url"

	"github.com/spf13/cobra"

	"github.com/mcoot/partyroom/internal/api/request"
	"github.com/mcoot/partyroom/internal/api/response"
	"github.com/mcoot/partyroom/internal/model"
)

func playerPath(playerID string) string {
	return "/api/v1/players/" + url.PathEscape(playerID) + "/games"
}

func seatPath(roomID, playerID string) string {
	return "/api/v1/rooms/" + url.PathEscape(roomID) + "/players/" + url.PathEscape(playerID)
}

func newNewGameCmd() *cobra.Command {
	var roomType string

	cmd := &cobra.Command{
		Use:   "newgame <player-id> <room-id>",
		Short: "Log a player into a room",
		Long: `Log a player into a room, creating the room if it does not exist.

A first-time player is given a random position and colour; a returning
player keeps the state they had when they last left.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := request.NewGameRequest{
				RoomID:   model.RoomID(args[1]),
				RoomType: model.RoomType(roomType),
			}

			var result response.NewGame
			if err := client.Post(playerPath(args[0]), req, &result); err != nil {
				return err
			}

			NewOutput(cfg.Output).Print(result)
			return nil
		},
	}

	cmd.Flags().StringVarP(&roomType, "type", "t", string(model.RoomTypeOffice), "Room type: Office, Garden, Cafe")

	return cmd
}

func newUpdateCmd() *cobra.Command {
	var data model.PlayerData

	cmd := &cobra.Command{
		Use:   "update <room-id> <player-id>",
		Short: "Sync a seated player's position and colour",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := client.Put(seatPath(args[0], args[1]), data); err != nil {
				return err
			}

			NewOutput(cfg.Output).PrintMessage(fmt.Sprintf("Updated %s in %s", args[1], args[0]))
			return nil
		},
	}

	cmd.Flags().IntVarP(&data.X, "x", "x", 0, "X position")
	cmd.Flags().IntVarP(&data.Y, "y", "y", 0, "Y position")
	cmd.Flags().StringVarP(&data.Color, "color", "c", "", "Colour as 6 hex digits")
	_ = cmd.MarkFlagRequired("color")

	return cmd
}

func newEndGameCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "endgame <room-id> <player-id>",
		Short: "Take a player out of a room and log them out",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := client.Delete(seatPath(args[0], args[1])); err != nil {
				return err
			}

			NewOutput(cfg.Output).PrintMessage(fmt.Sprintf("Ended session of %s in %s", args[1], args[0]))
			return nil
		},
	}
}
