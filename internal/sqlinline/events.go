package sqlinline

const QInsertEvent = `--sql 6c724606-8bbb-4118-9170-2b9448558fc8
insert into ledger_events(id, kind, campaign_id, payload, occurred_at)
values ($1::uuid, $2::text, $3::bigint, $4::jsonb, $5::timestamptz)
on conflict (id) do nothing;
`

const QListEventsByCampaign = `--sql c0a22b41-8438-40f1-ba47-d0467e635e96
select payload
from ledger_events
where campaign_id = $1::bigint
order by occurred_at, id;
`
