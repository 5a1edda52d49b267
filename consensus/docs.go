package consensus

//
//                 tx                       event (1 sig)              event (2 sigs)
//  client ----> [ 0 leader ] ----------> [ 1 ] ---------------------> [ 2 ] ---> ... [ 2f+1 proxy tail ]
//                  sign                    verify+sign                 verify+sign
//
//  signatures >= 2f+1  : commit (status CAS), append to the commit log, dedup record,
//                        execute, broadcast the committed event to all active peers
//  signatures <  2f+1  : forward to the next chain position, arm the panic timer
//
//  panic timer fires   : panic_count++ and the event's own expansion count e++,
//                        window = [2f+1 + f*e, +f] clamped to N-1,
//                        re-deliver to the window, re-arm. A panic after the window already
//                        reached N-1 is a liveness fault: surfaced, not re-armed.
//
// EventProcessor - protocol driver, all work runs on the TaskDispatcher
//	- ConsensusContext - roster in chain order, role, f, proxy tail, panic and commit counters
//	- DedupCache - hash -> Committed | Rejected, makes execution idempotent
//	- Mempool - one canonical in-flight event per hash
//	- PanicController - window expansion, timers on the Scheduler keyed by hash
//	- Reactor - p2p transport, submits inbound messages and never blocks on them
