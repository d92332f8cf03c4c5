package contract

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rpc"

	"scheduled_payments/internal/domain/entity"
)

const scheduleTuple = `{"name":"","type":"tuple","components":[
	{"name":"payer","type":"address"},
	{"name":"recipient","type":"address"},
	{"name":"amount","type":"uint256"},
	{"name":"interval","type":"uint256"},
	{"name":"nextExecution","type":"uint256"},
	{"name":"executionsLeft","type":"uint256"},
	{"name":"remainingBalance","type":"uint256"},
	{"name":"active","type":"bool"}]}`

// scheduledPaymentsABI is the read/write surface of the scheduled payments ledger.
var scheduledPaymentsABI = `[
{"type":"function","name":"createSchedule","stateMutability":"payable","inputs":[
	{"name":"recipient","type":"address"},{"name":"amount","type":"uint256"},{"name":"interval","type":"uint256"},
	{"name":"startTime","type":"uint256"},{"name":"executions","type":"uint256"}],
	"outputs":[{"name":"id","type":"uint256"}]},
{"type":"function","name":"cancelSchedule","stateMutability":"nonpayable","inputs":[{"name":"id","type":"uint256"}],"outputs":[]},
{"type":"function","name":"getSchedule","stateMutability":"view","inputs":[{"name":"id","type":"uint256"}],"outputs":[` + scheduleTuple + `]},
{"type":"function","name":"getUserScheduleIds","stateMutability":"view","inputs":[{"name":"user","type":"address"}],"outputs":[{"name":"","type":"uint256[]"}]},
{"type":"function","name":"getUserSchedules","stateMutability":"view","inputs":[{"name":"user","type":"address"}],"outputs":[` +
	strings.Replace(scheduleTuple, `"type":"tuple"`, `"type":"tuple[]"`, 1) + `]},
{"type":"function","name":"previewTotalCost","stateMutability":"view","inputs":[{"name":"amount","type":"uint256"},{"name":"executions","type":"uint256"}],"outputs":[{"name":"","type":"uint256"}]},
{"type":"function","name":"feeBps","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
{"type":"function","name":"schedulesCount","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
{"type":"event","name":"ScheduleCreated","anonymous":false,"inputs":[{"name":"id","type":"uint256","indexed":true},{"name":"payer","type":"address","indexed":true}]},
{"type":"event","name":"ScheduleCancelled","anonymous":false,"inputs":[{"name":"id","type":"uint256","indexed":true},{"name":"refundedPrincipal","type":"uint256","indexed":false}]},
{"type":"event","name":"PaymentExecuted","anonymous":false,"inputs":[{"name":"id","type":"uint256","indexed":true},{"name":"recipient","type":"address","indexed":true},{"name":"amount","type":"uint256","indexed":false}]}
]`

var (
	parsedABI     abi.ABI
	parsedABIOnce sync.Once
)

func ledgerABI() abi.ABI {
	parsedABIOnce.Do(func() {
		var err error
		parsedABI, err = abi.JSON(strings.NewReader(scheduledPaymentsABI))
		if err != nil {
			panic(fmt.Sprintf("failed to parse scheduled payments ABI: %v", err))
		}
	})
	return parsedABI
}

// ABI returns the parsed ledger ABI.
func ABI() abi.ABI {
	return ledgerABI()
}

// scheduleRecord mirrors the on-chain Schedule struct. Field names must match the ABI components.
type scheduleRecord struct {
	Payer            common.Address
	Recipient        common.Address
	Amount           *big.Int
	Interval         *big.Int
	NextExecution    *big.Int
	ExecutionsLeft   *big.Int
	RemainingBalance *big.Int
	Active           bool
}

func (r scheduleRecord) toEntity(id uint64) entity.Schedule {
	return entity.Schedule{
		ID:                 id,
		Payer:              r.Payer,
		Recipient:          r.Recipient,
		AmountPerExecution: r.Amount,
		IntervalSeconds:    r.Interval.Uint64(),
		NextExecutionTime:  r.NextExecution.Int64(),
		ExecutionsLeft:     r.ExecutionsLeft.Uint64(),
		RemainingBalance:   r.RemainingBalance,
		Active:             r.Active,
	}
}

// Codec packs calls to and unpacks results from the ledger contract at Address.
type Codec struct {
	Address common.Address
}

// NewCodec returns a codec bound to the given contract address.
func NewCodec(address common.Address) *Codec {
	ledgerABI()
	return &Codec{Address: address}
}

func (c *Codec) PackCreateSchedule(recipient common.Address, amount *big.Int, intervalSeconds uint64, startTime int64, executions uint64) ([]byte, error) {
	return ledgerABI().Pack("createSchedule", recipient, amount,
		new(big.Int).SetUint64(intervalSeconds), big.NewInt(startTime), new(big.Int).SetUint64(executions))
}

func (c *Codec) PackCancelSchedule(id uint64) ([]byte, error) {
	return ledgerABI().Pack("cancelSchedule", new(big.Int).SetUint64(id))
}

func (c *Codec) PackGetSchedule(id uint64) ([]byte, error) {
	return ledgerABI().Pack("getSchedule", new(big.Int).SetUint64(id))
}

func (c *Codec) PackGetUserScheduleIDs(user common.Address) ([]byte, error) {
	return ledgerABI().Pack("getUserScheduleIds", user)
}

func (c *Codec) PackGetUserSchedules(user common.Address) ([]byte, error) {
	return ledgerABI().Pack("getUserSchedules", user)
}

func (c *Codec) PackPreviewTotalCost(amount *big.Int, executions uint64) ([]byte, error) {
	return ledgerABI().Pack("previewTotalCost", amount, new(big.Int).SetUint64(executions))
}

func (c *Codec) PackFeeBps() ([]byte, error) {
	return ledgerABI().Pack("feeBps")
}

func (c *Codec) PackSchedulesCount() ([]byte, error) {
	return ledgerABI().Pack("schedulesCount")
}

// UnpackSchedule decodes a getSchedule result.
func (c *Codec) UnpackSchedule(id uint64, data []byte) (entity.Schedule, error) {
	out, err := unpackOne("getSchedule", data)
	if err != nil {
		return entity.Schedule{}, err
	}
	record, ok := abi.ConvertType(out, new(scheduleRecord)).(*scheduleRecord)
	if !ok {
		return entity.Schedule{}, fmt.Errorf("getSchedule: unexpected result type %T", out)
	}
	return record.toEntity(id), nil
}

// UnpackScheduleIDs decodes a getUserScheduleIds result.
func (c *Codec) UnpackScheduleIDs(data []byte) ([]uint64, error) {
	out, err := unpackOne("getUserScheduleIds", data)
	if err != nil {
		return nil, err
	}
	raw, ok := out.([]*big.Int)
	if !ok {
		return nil, fmt.Errorf("getUserScheduleIds: unexpected result type %T", out)
	}
	ids := make([]uint64, len(raw))
	for i, id := range raw {
		if !id.IsUint64() {
			return nil, fmt.Errorf("getUserScheduleIds: id %s overflows uint64", id)
		}
		ids[i] = id.Uint64()
	}
	return ids, nil
}

// UnpackSchedules decodes a getUserSchedules result and pairs each record with the
// id at the same index. The two reads must describe the same collection.
func (c *Codec) UnpackSchedules(ids []uint64, data []byte) ([]entity.Schedule, error) {
	out, err := unpackOne("getUserSchedules", data)
	if err != nil {
		return nil, err
	}
	records, ok := abi.ConvertType(out, new([]scheduleRecord)).(*[]scheduleRecord)
	if !ok {
		return nil, fmt.Errorf("getUserSchedules: unexpected result type %T", out)
	}
	if len(*records) != len(ids) {
		return nil, fmt.Errorf("getUserSchedules returned %d records for %d ids", len(*records), len(ids))
	}
	schedules := make([]entity.Schedule, len(ids))
	for i, r := range *records {
		schedules[i] = r.toEntity(ids[i])
	}
	return schedules, nil
}

// UnpackUint decodes any single-uint256 result (feeBps, schedulesCount, previewTotalCost).
func (c *Codec) UnpackUint(method string, data []byte) (*big.Int, error) {
	out, err := unpackOne(method, data)
	if err != nil {
		return nil, err
	}
	v, ok := out.(*big.Int)
	if !ok {
		return nil, fmt.Errorf("%s: unexpected result type %T", method, out)
	}
	return v, nil
}

// CreatedScheduleID finds the ScheduleCreated event emitted by this contract in logs.
func (c *Codec) CreatedScheduleID(logs []*types.Log) (uint64, bool) {
	created := ledgerABI().Events["ScheduleCreated"].ID
	for _, l := range logs {
		if l == nil || l.Address != c.Address || len(l.Topics) < 2 || l.Topics[0] != created {
			continue
		}
		id := new(big.Int).SetBytes(l.Topics[1].Bytes())
		if !id.IsUint64() {
			return 0, false
		}
		return id.Uint64(), true
	}
	return 0, false
}

func unpackOne(method string, data []byte) (interface{}, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%s: empty result (is the contract deployed at this address?)", method)
	}
	out, err := ledgerABI().Unpack(method, data)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack %s result: %w. Raw: %s", method, err, hexutil.Encode(data))
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%s unpack returned no data", method)
	}
	return out[0], nil
}

// RevertReason extracts the revert string a node attached to err, if any.
func RevertReason(err error) string {
	if err == nil {
		return ""
	}
	var dataErr rpc.DataError
	if errors.As(err, &dataErr) {
		if s, ok := dataErr.ErrorData().(string); ok {
			if raw, decErr := hexutil.Decode(s); decErr == nil {
				if reason, unpackErr := abi.UnpackRevert(raw); unpackErr == nil {
					return reason
				}
			}
		}
	}
	const marker = "execution reverted: "
	if i := strings.Index(err.Error(), marker); i >= 0 {
		return strings.TrimSpace(err.Error()[i+len(marker):])
	}
	return ""
}
