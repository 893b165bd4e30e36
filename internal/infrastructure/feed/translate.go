package feed

import (
	"strconv"

	"github.com/aws/aws-sdk-go-v2/service/dynamodbstreams/types"
	"github.com/fintechdemo/ledger/internal/application/sequencer"
)

// translateRecord converts one DynamoDB stream record into the dispatcher's
// neutral change-record shape. Only scalar attributes are carried over; that
// covers everything the dispatcher filters on (type, sequence, id, accountId).
func translateRecord(record types.Record) sequencer.ChangeRecord {
	out := sequencer.ChangeRecord{
		Kind: sequencer.ChangeKind(record.EventName),
	}
	if record.Dynamodb == nil || record.Dynamodb.NewImage == nil {
		return out
	}

	out.NewImage = make(map[string]string, len(record.Dynamodb.NewImage))
	for name, value := range record.Dynamodb.NewImage {
		switch v := value.(type) {
		case *types.AttributeValueMemberS:
			out.NewImage[name] = v.Value
		case *types.AttributeValueMemberN:
			out.NewImage[name] = v.Value
		case *types.AttributeValueMemberBOOL:
			out.NewImage[name] = strconv.FormatBool(v.Value)
		}
	}
	return out
}

// translateBatch converts a page of stream records
func translateBatch(records []types.Record) []sequencer.ChangeRecord {
	out := make([]sequencer.ChangeRecord, 0, len(records))
	for _, record := range records {
		out = append(out, translateRecord(record))
	}
	return out
}
