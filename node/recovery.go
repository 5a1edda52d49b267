package node

import (
	"github.com/pkg/errors"
	"github.com/tendermint/tendermint/libs/log"

	"sumeragi/consensus"
	"sumeragi/store"
	"sumeragi/types"
)

// restoreRoster brings ctx to the chain order of the last run: the saved
// roster is restored, then peer commands committed after it are replayed
// from the commit log. It returns the commit height the roster reflects.
func restoreRoster(
	ctx *consensus.ConsensusContext,
	rosters *store.RosterStore,
	commits *store.CommitStore,
	logger log.Logger,
) (int64, error) {
	snap, err := rosters.LoadRoster()
	if err != nil {
		return 0, errors.Wrap(err, "load roster")
	}
	var from int64
	if snap != nil {
		if err := ctx.Restore(snap); err != nil {
			return 0, errors.Wrapf(err, "restore roster at height %d", snap.Height)
		}
		from = snap.Height
	}

	height := commits.Height()
	replayed := 0
	for h := from + 1; h <= height; h++ {
		record, err := commits.LoadCommit(h)
		if err != nil {
			return 0, err
		}
		cmd, ok := record.Transaction.Command.(types.PeerCommand)
		if !ok {
			continue
		}
		// refused commands were refused the first time as well
		if err := ctx.ApplyPeerCommand(cmd); err != nil {
			logger.Error("skip peer command", "height", h, "cmd", types.CommandName(cmd), "err", err)
			continue
		}
		replayed++
	}

	if err := rosters.SaveRoster(ctx.RosterSnapshot(height)); err != nil {
		return 0, errors.Wrap(err, "save roster")
	}
	logger.Info("roster restored", "saved", snap != nil, "from", from, "height", height,
		"replayed", replayed, "round", ctx.Round())
	return height, nil
}

// repairDedup records commits that reached the commit log but not the dedup
// cache before a crash, and executes them. Commits finish out of order by at
// most the number of workers, so the scan from the tip stops after window
// consecutive recorded hashes.
func repairDedup(
	dedup *consensus.DedupCache,
	commits *store.CommitStore,
	executor consensus.TxExecutor,
	window int,
	logger log.Logger,
) (int, error) {
	if window < 1 {
		window = 1
	}
	repaired, seen := 0, 0
	for h := commits.Height(); h > 0 && seen < window; h-- {
		record, err := commits.LoadCommit(h)
		if err != nil {
			return repaired, err
		}
		tx := record.Transaction
		recorded, err := dedup.Record(tx.Hash, consensus.TxCommitted)
		if err != nil {
			return repaired, err
		}
		if !recorded {
			seen++
			continue
		}
		seen = 0
		repaired++
		if err := executor.ExecuteTx(tx); err != nil {
			logger.Error("failed to execute repaired commit", "height", h, "hash", tx.Key(), "err", err)
		}
	}
	if repaired > 0 {
		logger.Info("repaired dedup cache", "commits", repaired, "height", commits.Height())
	}
	return repaired, nil
}
