package sqlinline

const QInsertDonation = `--sql 6067d0c3-eca0-42fb-8d3e-4b4d0aa88561
insert into donations(id, campaign_id, donor, amount, tx_ref, created_at)
values ($1::uuid, $2::bigint, $3::text, $4::numeric, $5::text, $6::timestamptz);
`

const QListDonations = `--sql 7cb687ee-4f14-42d8-a43f-d1e40ea4317b
select id::text, campaign_id, donor, amount::text, tx_ref, created_at
from donations
where campaign_id = $1::bigint
order by seq;
`

const QGetContribution = `--sql ae95d004-2361-4063-8727-34ea49998c82
select campaign_id, donor, total::text, refunded, refunded_at
from contributions
where campaign_id = $1::bigint and donor = $2::text;
`

const QUpsertContribution = `--sql 34ae0cb3-059d-46fa-823e-458c4641e27c
insert into contributions(campaign_id, donor, total, refunded, refunded_at)
values ($1::bigint, $2::text, $3::numeric, $4::boolean, $5::timestamptz)
on conflict (campaign_id, donor) do update
set total = excluded.total,
    refunded = excluded.refunded,
    refunded_at = excluded.refunded_at;
`
